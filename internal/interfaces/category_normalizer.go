package interfaces

import (
	"context"

	"github.com/ternarybob/supplyline/internal/models"
)

// CategoryNormalizer resolves extracted category paths against the
// canonical tree, creating missing nodes flagged for review
type CategoryNormalizer interface {
	// NormalizePath walks the path parent-first and returns the leaf
	// category id plus the per-level outcomes. Segments below the fuzzy
	// threshold are created with needs_review set.
	NormalizePath(ctx context.Context, supplierID string, path []string) (leafID *string, levels []models.CategoryMatchResult, err error)
	// Stats returns counters accumulated since the last Reset
	Stats() models.NormalizationStats
	Reset()
}
