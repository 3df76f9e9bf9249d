package interfaces

import (
	"context"

	"github.com/ternarybob/supplyline/internal/models"
)

// EmbeddingService produces item embeddings and persists them to the vector store
type EmbeddingService interface {
	// GenerateEmbedding creates a vector for text, validating the dimension
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// EmbedItem builds the item's text representation, embeds it and upserts
	// the vector keyed by (supplier_item_id, model_name)
	EmbedItem(ctx context.Context, item *models.SupplierItem) error
	// Dimension returns the configured embedding dimension
	Dimension() int
	// ModelName returns the embedding model identifier
	ModelName() string
	IsAvailable(ctx context.Context) bool
}
