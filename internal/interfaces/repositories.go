package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ternarybob/supplyline/internal/models"
)

// SupplierRepository persists suppliers
type SupplierRepository interface {
	Create(ctx context.Context, supplier *models.Supplier) error
	GetByID(ctx context.Context, id string) (*models.Supplier, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Supplier, error)
	Update(ctx context.Context, supplier *models.Supplier) error
	SetLastSync(ctx context.Context, id string, at time.Time) error
}

// CategoryRepository persists the category tree
type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	GetByID(ctx context.Context, id string) (*models.Category, error)
	// ListAll returns every active category; the normalizer caches the
	// full tree for a run
	ListAll(ctx context.Context) ([]*models.Category, error)
	ListChildren(ctx context.Context, parentID *string) ([]*models.Category, error)
	SetNeedsReview(ctx context.Context, id string, needsReview bool) error
}

// ProductRepository persists canonical products and their aggregates
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	ListActiveNames(ctx context.Context) ([]models.ProductName, error)
	// RecomputeAggregates refreshes min_price and availability from the
	// product's linked in-stock supplier items in one statement
	RecomputeAggregates(ctx context.Context, productID string) error
	SetStatus(ctx context.Context, productID string, status models.ProductStatus) error
}

// SupplierItemRepository persists supplier items and price history
type SupplierItemRepository interface {
	// Upsert inserts or updates by (supplier_id, normalized name), writing a
	// price_history row in the same transaction when the price changed
	Upsert(ctx context.Context, item *models.SupplierItem) (created bool, err error)
	GetByID(ctx context.Context, id string) (*models.SupplierItem, error)
	ListBySupplier(ctx context.Context, supplierID string) ([]*models.SupplierItem, error)
	ListUnmatched(ctx context.Context, limit int) ([]*models.SupplierItem, error)
	SetMatch(ctx context.Context, itemID string, productID *string, status models.MatchStatus, score *float64, candidates []models.MatchCandidate) error
	ListLinkedPrices(ctx context.Context, productID string) ([]decimal.Decimal, error)
}

// ReviewRepository persists the manual match review queue
type ReviewRepository interface {
	// Enqueue upserts by supplier_item_id, refreshing candidates and expiry
	Enqueue(ctx context.Context, entry *models.ReviewEntry) error
	GetByID(ctx context.Context, id string) (*models.ReviewEntry, error)
	ListPending(ctx context.Context, limit, offset int) ([]*models.ReviewEntry, error)
	SetStatus(ctx context.Context, id string, status models.ReviewStatus, resolvedBy string) error
	// ExpirePending marks pending entries older than the cutoff as expired,
	// returning how many changed
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

// ParsingLogRepository persists pipeline diagnostics
type ParsingLogRepository interface {
	Append(ctx context.Context, log *models.ParsingLog) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]*models.ParsingLog, error)
	// DeleteOlderThan removes logs past the retention window
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
