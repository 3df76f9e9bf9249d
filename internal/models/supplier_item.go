package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus tracks how a supplier item relates to a canonical product
type MatchStatus string

const (
	MatchUnmatched MatchStatus = "unmatched"
	MatchAuto      MatchStatus = "auto_matched"
	MatchPotential MatchStatus = "potential_match"
	MatchVerified  MatchStatus = "verified_match"
)

// Valid reports whether the status is one of the allowed values
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchUnmatched, MatchAuto, MatchPotential, MatchVerified:
		return true
	}
	return false
}

// IsLinked reports whether the status requires a product link
func (s MatchStatus) IsLinked() bool {
	return s == MatchAuto || s == MatchVerified
}

// Characteristics is the free-form attribute map on a supplier item.
// Values come from JSON so numbers arrive as float64 and booleans may
// arrive as strings; accessors tolerate both.
type Characteristics map[string]interface{}

// GetBoolTolerant extracts a boolean with tolerant parsing: boolean true,
// and the strings "true", "yes", "1" (case-insensitive) count as true.
// Everything else, including a missing key, is false.
func (c Characteristics) GetBoolTolerant(key string) bool {
	if c == nil {
		return false
	}
	val, ok := c[key]
	if !ok || val == nil {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return v == 1
	case int:
		return v == 1
	}
	return false
}

// GetString extracts a string value, empty when missing or not a string
func (c Characteristics) GetString(key string) string {
	if c == nil {
		return ""
	}
	if s, ok := c[key].(string); ok {
		return s
	}
	return ""
}

// SupplierItem is one product row from a supplier's catalog.
// (supplier_id, supplier_sku) is unique. A linked status implies
// ProductID is set; MatchScore is set iff the matcher produced the status.
type SupplierItem struct {
	ID              string           `json:"id"`
	SupplierID      string           `json:"supplier_id"`
	ProductID       *string          `json:"product_id,omitempty"`
	SupplierSKU     string           `json:"supplier_sku"`
	Name            string           `json:"name"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	Characteristics Characteristics  `json:"characteristics,omitempty"`
	MatchStatus     MatchStatus      `json:"match_status"`
	MatchScore      *float64         `json:"match_score,omitempty"` // 0-100 when set
	MatchCandidates []MatchCandidate `json:"match_candidates,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       *time.Time       `json:"updated_at,omitempty"`
}

// InStock reports the tolerant in_stock characteristic
func (i *SupplierItem) InStock() bool {
	return i.Characteristics.GetBoolTolerant("in_stock")
}
