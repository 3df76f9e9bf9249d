package models

import "time"

// Category is a node in the product category forest.
// (name, parent_id) is unique and the parent chain is acyclic.
// A needs_review category may only transition to false via admin
// approval or be merged into another category.
type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ParentID    *string    `json:"parent_id,omitempty"`
	NeedsReview bool       `json:"needs_review"`
	SupplierID  *string    `json:"supplier_id,omitempty"` // Introducing supplier, when created by ingestion
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// CategoryAction describes how a path level was resolved
type CategoryAction string

const (
	CategoryMatched CategoryAction = "matched"
	CategoryCreated CategoryAction = "created"
	CategorySkipped CategoryAction = "skipped"
)

// CategoryMatchResult is the per-level outcome of normalizing a category path
type CategoryMatchResult struct {
	Level          int            `json:"level"`
	ExtractedName  string         `json:"extracted_name"`
	MatchedID      string         `json:"matched_id,omitempty"`
	MatchedName    string         `json:"matched_name,omitempty"`
	Similarity     float64        `json:"similarity"`
	Action         CategoryAction `json:"action"`
	NeedsReview    bool           `json:"needs_review"`
}

// NormalizationStats accumulates per-run counters for the category normalizer
type NormalizationStats struct {
	Matched       int     `json:"matched"`
	Created       int     `json:"created"`
	Skipped       int     `json:"skipped"`
	ReviewQueue   int     `json:"review_queue"`
	SimilaritySum float64 `json:"-"`
}

// AverageSimilarity returns the mean similarity over matched levels
func (s *NormalizationStats) AverageSimilarity() float64 {
	if s.Matched == 0 {
		return 0
	}
	return s.SimilaritySum / float64(s.Matched)
}
