package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistory is an append-only log of observed prices. A row is
// inserted whenever current_price on an existing supplier item changes.
type PriceHistory struct {
	ID             string          `json:"id"`
	SupplierItemID string          `json:"supplier_item_id"`
	Price          decimal.Decimal `json:"price"`
	RecordedAt     time.Time       `json:"recorded_at"`
}
