package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the lifecycle state of a canonical product
type ProductStatus string

const (
	ProductDraft    ProductStatus = "draft"
	ProductActive   ProductStatus = "active"
	ProductArchived ProductStatus = "archived"
)

// Valid reports whether the status is one of the allowed values
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductDraft, ProductActive, ProductArchived:
		return true
	}
	return false
}

// Product is the canonical internal catalog item.
// MinPrice and Availability are derived aggregates maintained by the
// aggregation engine: MIN(current_price) and OR(in_stock) over linked
// supplier items with match_status in {auto_matched, verified_match}.
// ProductName is the slim projection the fuzzy matcher scores against
type ProductName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID           string           `json:"id"`
	InternalSKU  string           `json:"internal_sku"` // Unique, immutable
	Name         string           `json:"name"`
	CategoryID   *string          `json:"category_id,omitempty"`
	Status       ProductStatus    `json:"status"`
	MinPrice     *decimal.Decimal `json:"min_price,omitempty"`
	Availability bool             `json:"availability"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
}
