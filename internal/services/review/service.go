package review

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
	"github.com/ternarybob/supplyline/internal/services/aggregation"
)

// ErrNotActionable is returned when a review decision targets an entry
// that already left the pending/needs_category states.
var ErrNotActionable = fmt.Errorf("review entry is not awaiting a decision")

// Service applies human decisions to queued potential matches.
// Approvals produce verified matches, which the matcher never re-scores;
// rejections leave the item unmatched unless a draft product is requested.
type Service struct {
	review     interfaces.ReviewRepository
	items      interfaces.SupplierItemRepository
	products   interfaces.ProductRepository
	aggregates *aggregation.Service
	queue      interfaces.Queue
	logger     arbor.ILogger
}

// NewService creates the review service
func NewService(
	review interfaces.ReviewRepository,
	items interfaces.SupplierItemRepository,
	products interfaces.ProductRepository,
	aggregates *aggregation.Service,
	queue interfaces.Queue,
	logger arbor.ILogger,
) *Service {
	return &Service{
		review:     review,
		items:      items,
		products:   products,
		aggregates: aggregates,
		queue:      queue,
		logger:     logger,
	}
}

// Approve links the supplier item to the chosen product as a verified
// match and refreshes aggregates on both the old and the new product.
func (s *Service) Approve(ctx context.Context, entryID, productID, reviewer string) error {
	entry, err := s.actionable(ctx, entryID)
	if err != nil {
		return err
	}

	item, err := s.items.GetByID(ctx, entry.SupplierItemID)
	if err != nil {
		return fmt.Errorf("failed to load supplier item %s: %w", entry.SupplierItemID, err)
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return fmt.Errorf("approved product %s not found: %w", productID, err)
	}

	var score *float64
	for _, candidate := range entry.Candidates {
		if candidate.ProductID == productID {
			v := candidate.Score
			score = &v
			break
		}
	}

	if err := s.items.SetMatch(ctx, item.ID, &productID, models.MatchVerified, score, entry.Candidates); err != nil {
		return fmt.Errorf("failed to link item %s: %w", item.ID, err)
	}
	if err := s.review.SetStatus(ctx, entryID, models.ReviewApproved, reviewer); err != nil {
		return fmt.Errorf("failed to close review entry: %w", err)
	}

	// Both sides of a relink need fresh aggregates
	affected := []string{productID}
	if item.ProductID != nil && *item.ProductID != productID {
		affected = append(affected, *item.ProductID)
	}
	if _, err := s.aggregates.Recompute(ctx, affected, aggregation.TriggerReview); err != nil {
		s.logger.Warn().Err(err).Str("entry_id", entryID).Msg("Aggregate refresh after approval failed")
	}

	s.logger.Info().
		Str("entry_id", entryID).
		Str("item_id", item.ID).
		Str("product_id", productID).
		Str("reviewer", reviewer).
		Msg("Match approved")
	return nil
}

// Reject closes the entry. The item stays unmatched unless createDraft is
// set, in which case a draft product is created from the item and linked
// as a verified match for later curation.
func (s *Service) Reject(ctx context.Context, entryID, reviewer string, createDraft bool) error {
	entry, err := s.actionable(ctx, entryID)
	if err != nil {
		return err
	}

	item, err := s.items.GetByID(ctx, entry.SupplierItemID)
	if err != nil {
		return fmt.Errorf("failed to load supplier item %s: %w", entry.SupplierItemID, err)
	}

	if createDraft {
		draft := &models.Product{
			ID:          common.NewID(),
			InternalSKU: fmt.Sprintf("DRAFT-%s", item.SupplierSKU),
			Name:        item.Name,
			Status:      models.ProductDraft,
			CreatedAt:   time.Now().UTC(),
		}
		if categoryID := item.Characteristics.GetString("category_id"); categoryID != "" {
			draft.CategoryID = &categoryID
		}
		if err := s.products.Create(ctx, draft); err != nil {
			return fmt.Errorf("failed to create draft product: %w", err)
		}
		if err := s.items.SetMatch(ctx, item.ID, &draft.ID, models.MatchVerified, nil, nil); err != nil {
			return fmt.Errorf("failed to link draft product: %w", err)
		}
		if _, err := s.aggregates.Recompute(ctx, []string{draft.ID}, aggregation.TriggerReview); err != nil {
			s.logger.Warn().Err(err).Str("product_id", draft.ID).Msg("Draft aggregate refresh failed")
		}
		s.logger.Info().
			Str("entry_id", entryID).
			Str("item_id", item.ID).
			Str("draft_product_id", draft.ID).
			Msg("Match rejected into draft product")
	} else {
		if err := s.items.SetMatch(ctx, item.ID, nil, models.MatchUnmatched, nil, entry.Candidates); err != nil {
			return fmt.Errorf("failed to unlink item %s: %w", item.ID, err)
		}
		s.logger.Info().
			Str("entry_id", entryID).
			Str("item_id", item.ID).
			Str("reviewer", reviewer).
			Msg("Match rejected")
	}

	return s.review.SetStatus(ctx, entryID, models.ReviewRejected, reviewer)
}

// Categorize parks the entry as needs_category until the category tree
// has been curated; Reopen returns it to the pending queue.
func (s *Service) Categorize(ctx context.Context, entryID, reviewer string) error {
	if _, err := s.actionable(ctx, entryID); err != nil {
		return err
	}
	return s.review.SetStatus(ctx, entryID, models.ReviewNeedsCategory, reviewer)
}

// Reopen returns a needs_category entry to pending
func (s *Service) Reopen(ctx context.Context, entryID string) error {
	entry, err := s.review.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != models.ReviewNeedsCategory {
		return ErrNotActionable
	}
	return s.review.SetStatus(ctx, entryID, models.ReviewPending, "")
}

// ListPending pages through the open review queue
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*models.ReviewEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.review.ListPending(ctx, limit, offset)
}

// ExpireStale marks pending entries past their deadline as expired and
// re-enqueues batch matching so the affected items get rescored against
// the current catalog. Runs daily from the scheduler.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.review.ExpirePending(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire review entries: %w", err)
	}
	if expired == 0 {
		return 0, nil
	}

	msg := &interfaces.QueueMessage{
		Type: "batch_match",
		Payload: map[string]interface{}{
			"reason": "review_expired",
		},
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return expired, fmt.Errorf("failed to enqueue rematch after expiry: %w", err)
	}

	s.logger.Info().Int("expired", expired).Msg("Stale review entries expired, rematch queued")
	return expired, nil
}

func (s *Service) actionable(ctx context.Context, entryID string) (*models.ReviewEntry, error) {
	entry, err := s.review.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.ReviewPending && entry.Status != models.ReviewNeedsCategory {
		return nil, ErrNotActionable
	}
	return entry, nil
}
