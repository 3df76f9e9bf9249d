package models

import "time"

// ProductEmbedding is one fixed-dimension vector per (supplier_item, model).
// Upsert replaces the vector and stamps UpdatedAt.
type ProductEmbedding struct {
	ID             string    `json:"id"`
	SupplierItemID string    `json:"supplier_item_id"`
	ModelName      string    `json:"model_name"`
	Embedding      []float32 `json:"embedding"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// VectorNeighbor is a nearest-neighbor search hit, distance ascending
type VectorNeighbor struct {
	SupplierItemID string  `json:"supplier_item_id"`
	Distance       float64 `json:"distance"`   // Cosine distance: 1 - cosine_similarity
	Similarity     float64 `json:"similarity"` // 1 - distance
}
