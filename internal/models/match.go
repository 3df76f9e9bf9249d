package models

// MatchCandidate is one scored canonical product candidate
type MatchCandidate struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`               // Fuzzy score in [0,100]
	Confidence float64 `json:"confidence,omitempty"` // LLM rerank confidence in [0,1]
	Reasoning  string  `json:"reasoning,omitempty"`  // LLM rerank justification
}

// MatchResult is the matcher's decision for one supplier item
type MatchResult struct {
	SupplierItemID string           `json:"supplier_item_id"`
	Status         MatchStatus      `json:"match_status"`
	BestMatch      *MatchCandidate  `json:"best_match,omitempty"`
	Candidates     []MatchCandidate `json:"candidates,omitempty"`
	Score          *float64         `json:"match_score,omitempty"`
}

// BatchMatchStats summarizes one matcher batch run
type BatchMatchStats struct {
	Processed   int `json:"processed"`
	AutoMatched int `json:"auto_matched"`
	Review      int `json:"review"`
	Unmatched   int `json:"unmatched"`
	Skipped     int `json:"skipped"` // verified_match items never re-scored
}
