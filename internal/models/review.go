package models

import "time"

// ReviewStatus is the lifecycle state of a match review entry
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewApproved      ReviewStatus = "approved"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewExpired       ReviewStatus = "expired"
	ReviewNeedsCategory ReviewStatus = "needs_category"
)

// Valid reports whether the status is one of the allowed values
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected, ReviewExpired, ReviewNeedsCategory:
		return true
	}
	return false
}

// ReviewEntry is a pending human decision for a medium-confidence match.
// One active entry per supplier item; upsert on supplier_item_id replaces.
// approved/rejected require ReviewedBy and ReviewedAt.
type ReviewEntry struct {
	ID             string           `json:"id"`
	SupplierItemID string           `json:"supplier_item_id"`
	Candidates     []MatchCandidate `json:"candidate_products"`
	Status         ReviewStatus     `json:"status"`
	ReviewedBy     *string          `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}
