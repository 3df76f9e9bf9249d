package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// ProductRepository persists canonical products and their aggregates
type ProductRepository struct {
	db     *DB
	logger arbor.ILogger
}

var _ interfaces.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates the product repository
func NewProductRepository(db *DB, logger arbor.ILogger) *ProductRepository {
	return &ProductRepository{db: db, logger: logger}
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO products (id, internal_sku, name, category_id, status, min_price, availability, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		product.ID, product.InternalSKU, product.Name, product.CategoryID,
		string(product.Status), product.MinPrice, product.Availability, product.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, internal_sku, name, category_id, status, min_price, availability, created_at, updated_at
		FROM products WHERE id = $1`, id)

	var product models.Product
	var status string
	err := row.Scan(&product.ID, &product.InternalSKU, &product.Name, &product.CategoryID,
		&status, &product.MinPrice, &product.Availability, &product.CreatedAt, &product.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	product.Status = models.ProductStatus(status)
	return &product, nil
}

func (r *ProductRepository) ListActiveNames(ctx context.Context) ([]models.ProductName, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name FROM products WHERE status = 'active' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product names: %w", err)
	}
	defer rows.Close()

	var names []models.ProductName
	for rows.Next() {
		var name models.ProductName
		if err := rows.Scan(&name.ID, &name.Name); err != nil {
			return nil, fmt.Errorf("failed to scan product name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// inStockSQL is the tolerant in_stock predicate over the characteristics
// JSONB: boolean true, "true", "yes" and 1 all count as in stock.
const inStockSQL = `LOWER(COALESCE(si.characteristics->>'in_stock', '')) IN ('true', 'yes', '1')`

// recomputeAggregatesSQL refreshes both aggregates in one statement so
// concurrent recomputes of the same product cannot interleave partial
// state. min_price is the MIN over every linked matched item whether in
// stock or not; availability is the OR over the same items' in_stock.
var recomputeAggregatesSQL = fmt.Sprintf(`
	UPDATE products SET
		min_price = (
			SELECT MIN(si.current_price)
			FROM supplier_items si
			WHERE si.product_id = products.id
			  AND si.match_status IN ('auto_matched', 'verified_match')
		),
		availability = EXISTS (
			SELECT 1
			FROM supplier_items si
			WHERE si.product_id = products.id
			  AND si.match_status IN ('auto_matched', 'verified_match')
			  AND %s
		),
		updated_at = NOW()
	WHERE id = $1`, inStockSQL)

// RecomputeAggregates refreshes min_price and availability for one product
func (r *ProductRepository) RecomputeAggregates(ctx context.Context, productID string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, recomputeAggregatesSQL, productID)
		if err != nil {
			return fmt.Errorf("failed to recompute aggregates: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *ProductRepository) SetStatus(ctx context.Context, productID string, status models.ProductStatus) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`,
		productID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set product status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
