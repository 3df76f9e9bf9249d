package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// SupplierItemRepository persists supplier items and their price history
type SupplierItemRepository struct {
	db     *DB
	logger arbor.ILogger
}

var _ interfaces.SupplierItemRepository = (*SupplierItemRepository)(nil)

// NewSupplierItemRepository creates the supplier item repository
func NewSupplierItemRepository(db *DB, logger arbor.ILogger) *SupplierItemRepository {
	return &SupplierItemRepository{db: db, logger: logger}
}

// Upsert inserts the item or refreshes an existing one keyed by
// (supplier_id, supplier_sku). Generated SKUs are stable per source row,
// so re-submitting a catalog refreshes rows in place while price variants
// of a shared name keep their own rows. A re-ingested item keeps its id
// and match state; a price change appends to price_history inside the
// same transaction so history and current price cannot diverge.
func (r *SupplierItemRepository) Upsert(ctx context.Context, item *models.SupplierItem) (bool, error) {
	normalized := models.NormalizeName(item.Name)
	created := false

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var existingID string
		var existingPrice decimal.Decimal
		err := tx.QueryRow(ctx, upsertLookupSQL, item.SupplierID, item.SupplierSKU).Scan(&existingID, &existingPrice)

		if errors.Is(err, pgx.ErrNoRows) {
			created = true
			if item.ID == "" {
				item.ID = common.NewID()
			}
			if item.CreatedAt.IsZero() {
				item.CreatedAt = time.Now().UTC()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO supplier_items
					(id, supplier_id, product_id, supplier_sku, name, normalized_name,
					 current_price, characteristics, match_status, match_score, match_candidates, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				item.ID, item.SupplierID, item.ProductID, item.SupplierSKU, item.Name, normalized,
				item.CurrentPrice, item.Characteristics, string(item.MatchStatus),
				item.MatchScore, item.MatchCandidates, item.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert supplier item: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up supplier item: %w", err)
		}

		if !existingPrice.Equal(item.CurrentPrice) {
			_, err := tx.Exec(ctx, `
				INSERT INTO price_history (id, supplier_item_id, price, recorded_at)
				VALUES ($1, $2, $3, NOW())`,
				common.NewID(), existingID, item.CurrentPrice)
			if err != nil {
				return fmt.Errorf("failed to record price change: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE supplier_items
			SET name = $2, normalized_name = $3, current_price = $4, characteristics = $5, updated_at = NOW()
			WHERE id = $1`,
			existingID, item.Name, normalized, item.CurrentPrice, item.Characteristics)
		if err != nil {
			return fmt.Errorf("failed to update supplier item: %w", err)
		}
		item.ID = existingID
		return nil
	})
	return created, err
}

func (r *SupplierItemRepository) GetByID(ctx context.Context, id string) (*models.SupplierItem, error) {
	row := r.db.pool.QueryRow(ctx, supplierItemSelect+` WHERE id = $1`, id)
	return scanSupplierItem(row)
}

func (r *SupplierItemRepository) ListBySupplier(ctx context.Context, supplierID string) ([]*models.SupplierItem, error) {
	rows, err := r.db.pool.Query(ctx, supplierItemSelect+`
		WHERE supplier_id = $1 ORDER BY created_at`, supplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to list supplier items: %w", err)
	}
	defer rows.Close()
	return collectSupplierItems(rows)
}

func (r *SupplierItemRepository) ListUnmatched(ctx context.Context, limit int) ([]*models.SupplierItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.pool.Query(ctx, supplierItemSelect+`
		WHERE match_status = 'unmatched' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched items: %w", err)
	}
	defer rows.Close()
	return collectSupplierItems(rows)
}

func (r *SupplierItemRepository) SetMatch(ctx context.Context, itemID string, productID *string, status models.MatchStatus, score *float64, candidates []models.MatchCandidate) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE supplier_items
		SET product_id = $2, match_status = $3, match_score = $4, match_candidates = $5, updated_at = NOW()
		WHERE id = $1`,
		itemID, productID, string(status), score, candidates)
	if err != nil {
		return fmt.Errorf("failed to set match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SupplierItemRepository) ListLinkedPrices(ctx context.Context, productID string) ([]decimal.Decimal, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT current_price FROM supplier_items
		WHERE product_id = $1 AND match_status IN ('auto_matched', 'verified_match')
		ORDER BY current_price`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked prices: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	for rows.Next() {
		var price decimal.Decimal
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

// upsertLookupSQL pins the upsert identity to the supplier's own SKU
const upsertLookupSQL = `
	SELECT id, current_price FROM supplier_items
	WHERE supplier_id = $1 AND supplier_sku = $2
	FOR UPDATE`

const supplierItemSelect = `
	SELECT id, supplier_id, product_id, supplier_sku, name, current_price,
	       characteristics, match_status, match_score, match_candidates, created_at, updated_at
	FROM supplier_items`

func scanSupplierItem(row pgx.Row) (*models.SupplierItem, error) {
	var item models.SupplierItem
	var status string
	err := row.Scan(&item.ID, &item.SupplierID, &item.ProductID, &item.SupplierSKU, &item.Name,
		&item.CurrentPrice, &item.Characteristics, &status, &item.MatchScore,
		&item.MatchCandidates, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan supplier item: %w", err)
	}
	item.MatchStatus = models.MatchStatus(status)
	return &item, nil
}

func collectSupplierItems(rows pgx.Rows) ([]*models.SupplierItem, error) {
	var items []*models.SupplierItem
	for rows.Next() {
		item, err := scanSupplierItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
