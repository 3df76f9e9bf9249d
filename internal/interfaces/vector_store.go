package interfaces

import (
	"context"

	"github.com/ternarybob/supplyline/internal/models"
)

// VectorStore persists fixed-dimension embeddings and answers
// cosine-distance nearest-neighbor queries.
type VectorStore interface {
	// Upsert replaces the vector for (supplier_item_id, model_name)
	Upsert(ctx context.Context, supplierItemID, modelName string, vector []float32) error
	// SearchTopK returns up to topK neighbors ordered by cosine distance
	// ascending, optionally excluding one supplier item id
	SearchTopK(ctx context.Context, query []float32, topK int, excludeItemID string) ([]models.VectorNeighbor, error)
	// Delete removes all vectors for a supplier item
	Delete(ctx context.Context, supplierItemID string) error
}
