package categories

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
	"github.com/ternarybob/supplyline/internal/services/matching"
)

// Normalizer resolves extracted category paths against the canonical tree.
// Matching is scoped per level: each segment is compared only against
// siblings under the already-resolved parent, so "Аксессуары" under
// "Инструмент" and under "Одежда" stay distinct.
//
// The full tree is loaded once per run (Reset) and new nodes are appended
// to the cache, keeping a whole-file normalization at one initial query.
type Normalizer struct {
	repo      interfaces.CategoryRepository
	threshold float64
	logger    arbor.ILogger

	mu       sync.Mutex
	loaded   bool
	byParent map[string][]*models.Category
	stats    models.NormalizationStats
}

// NewNormalizer creates a category normalizer with a 0-100 fuzzy threshold
func NewNormalizer(repo interfaces.CategoryRepository, threshold float64, logger arbor.ILogger) *Normalizer {
	if threshold <= 0 {
		threshold = 85
	}
	return &Normalizer{
		repo:      repo,
		threshold: threshold,
		logger:    logger,
		byParent:  make(map[string][]*models.Category),
	}
}

// compile-time interface check
var _ interfaces.CategoryNormalizer = (*Normalizer)(nil)

// NormalizePath resolves a category path parent-first, returning the leaf
// id and the per-level outcomes. Unresolvable segments are created as new
// categories flagged needs_review; empty segments are skipped.
func (n *Normalizer) NormalizePath(ctx context.Context, supplierID string, path []string) (*string, []models.CategoryMatchResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.ensureLoaded(ctx); err != nil {
		return nil, nil, err
	}

	var parentID *string
	var leafID *string
	levels := make([]models.CategoryMatchResult, 0, len(path))

	for level, segment := range path {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			n.stats.Skipped++
			levels = append(levels, models.CategoryMatchResult{
				Level:  level,
				Action: models.CategorySkipped,
			})
			continue
		}

		best, bestScore := n.bestSibling(parentID, segment)
		if best != nil && bestScore >= n.threshold {
			n.stats.Matched++
			n.stats.SimilaritySum += bestScore
			levels = append(levels, models.CategoryMatchResult{
				Level:         level,
				ExtractedName: segment,
				MatchedID:     best.ID,
				MatchedName:   best.Name,
				Similarity:    bestScore,
				Action:        models.CategoryMatched,
			})
			parentID = &best.ID
			leafID = &best.ID
			continue
		}

		created, err := n.create(ctx, supplierID, parentID, segment)
		if err != nil {
			return leafID, levels, fmt.Errorf("failed to create category %q: %w", segment, err)
		}
		n.stats.Created++
		n.stats.ReviewQueue++
		levels = append(levels, models.CategoryMatchResult{
			Level:         level,
			ExtractedName: segment,
			MatchedID:     created.ID,
			MatchedName:   created.Name,
			Similarity:    bestScore,
			Action:        models.CategoryCreated,
			NeedsReview:   true,
		})
		parentID = &created.ID
		leafID = &created.ID
	}

	return leafID, levels, nil
}

// Stats returns counters accumulated since the last Reset
func (n *Normalizer) Stats() models.NormalizationStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Reset clears counters and drops the tree cache so the next path reloads it
func (n *Normalizer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats = models.NormalizationStats{}
	n.loaded = false
	n.byParent = make(map[string][]*models.Category)
}

// ensureLoaded populates the sibling index from the repository.
// Caller holds the lock.
func (n *Normalizer) ensureLoaded(ctx context.Context) error {
	if n.loaded {
		return nil
	}
	all, err := n.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load category tree: %w", err)
	}
	n.byParent = make(map[string][]*models.Category, len(all))
	for _, category := range all {
		key := parentKey(category.ParentID)
		n.byParent[key] = append(n.byParent[key], category)
	}
	n.loaded = true
	n.logger.Debug().Int("categories", len(all)).Msg("Category tree loaded")
	return nil
}

// bestSibling scores a segment against the children of parentID.
// Caller holds the lock.
func (n *Normalizer) bestSibling(parentID *string, segment string) (*models.Category, float64) {
	var best *models.Category
	bestScore := 0.0
	for _, candidate := range n.byParent[parentKey(parentID)] {
		score := matching.TokenSetRatio(segment, candidate.Name)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, bestScore
}

// create persists a needs_review category and indexes it.
// Caller holds the lock.
func (n *Normalizer) create(ctx context.Context, supplierID string, parentID *string, name string) (*models.Category, error) {
	category := &models.Category{
		ID:          common.NewID(),
		Name:        name,
		ParentID:    parentID,
		NeedsReview: true,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if supplierID != "" {
		category.SupplierID = &supplierID
	}
	if err := n.repo.Create(ctx, category); err != nil {
		return nil, err
	}
	n.byParent[parentKey(parentID)] = append(n.byParent[parentKey(parentID)], category)

	n.logger.Info().
		Str("category_id", category.ID).
		Str("name", name).
		Msg("Created category pending review")
	return category, nil
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}
