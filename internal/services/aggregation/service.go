package aggregation

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
)

// Recompute triggers, recorded on logs for traceability
const (
	TriggerJobFinalized = "job_finalized"
	TriggerLink         = "link"
	TriggerUnlink       = "unlink"
	TriggerPriceChange  = "price_change"
	TriggerReview       = "review_decision"
	TriggerSweep        = "nightly_sweep"
)

// Service refreshes product aggregates (min_price, availability) from
// linked supplier items. The actual computation is a single UPDATE with
// correlated sub-selects per product; this service fans triggers out to it.
type Service struct {
	products interfaces.ProductRepository
	logger   arbor.ILogger
}

// NewService creates the aggregation service
func NewService(products interfaces.ProductRepository, logger arbor.ILogger) *Service {
	return &Service{
		products: products,
		logger:   logger,
	}
}

// Recompute refreshes aggregates for the given products. Duplicate and
// empty ids are skipped; a per-product failure is logged and counted but
// does not stop the rest of the batch. Returns how many products were
// refreshed and the first error encountered, if any.
func (s *Service) Recompute(ctx context.Context, productIDs []string, trigger string) (int, error) {
	seen := make(map[string]struct{}, len(productIDs))
	refreshed := 0
	var firstErr error

	for _, id := range productIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := s.products.RecomputeAggregates(ctx, id); err != nil {
			s.logger.Error().
				Err(err).
				Str("product_id", id).
				Str("trigger", trigger).
				Msg("Aggregate recompute failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("recompute product %s: %w", id, err)
			}
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		s.logger.Info().
			Int("products", refreshed).
			Str("trigger", trigger).
			Msg("Product aggregates refreshed")
	}
	return refreshed, firstErr
}

// SweepAll refreshes every active product, used by the nightly sweep to
// correct any drift left by missed triggers.
func (s *Service) SweepAll(ctx context.Context) (int, error) {
	names, err := s.products.ListActiveNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list products for sweep: %w", err)
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		ids = append(ids, n.ID)
	}
	return s.Recompute(ctx, ids, TriggerSweep)
}
