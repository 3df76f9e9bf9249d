package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// VectorRepository stores product embeddings in pgvector and answers
// cosine nearest-neighbor queries for rerank candidate selection.
type VectorRepository struct {
	db        *DB
	modelName string
	logger    arbor.ILogger
}

var _ interfaces.VectorStore = (*VectorRepository)(nil)

// NewVectorRepository creates the embedding store bound to one model.
// Mixed-model search makes distances incomparable, so queries filter on
// the model the store was created for.
func NewVectorRepository(db *DB, modelName string, logger arbor.ILogger) *VectorRepository {
	return &VectorRepository{db: db, modelName: modelName, logger: logger}
}

// Upsert replaces the vector for (supplier_item_id, model_name)
func (r *VectorRepository) Upsert(ctx context.Context, supplierItemID, modelName string, vector []float32) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO product_embeddings (id, supplier_item_id, model_name, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (supplier_item_id, model_name) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_at = NOW()`,
		common.NewID(), supplierItemID, modelName, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// SearchTopK returns the nearest supplier items by cosine distance,
// ascending, optionally excluding one item (typically the query's own).
func (r *VectorRepository) SearchTopK(ctx context.Context, query []float32, topK int, excludeItemID string) ([]models.VectorNeighbor, error) {
	if topK <= 0 {
		topK = 10
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT supplier_item_id, embedding <=> $1 AS distance
		FROM product_embeddings
		WHERE model_name = $2 AND supplier_item_id <> $3
		ORDER BY distance
		LIMIT $4`,
		pgvector.NewVector(query), r.modelName, excludeItemID, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var neighbors []models.VectorNeighbor
	for rows.Next() {
		var n models.VectorNeighbor
		if err := rows.Scan(&n.SupplierItemID, &n.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan neighbor: %w", err)
		}
		n.Similarity = 1 - n.Distance
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// Delete removes all vectors for a supplier item
func (r *VectorRepository) Delete(ctx context.Context, supplierItemID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM product_embeddings WHERE supplier_item_id = $1`, supplierItemID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}
