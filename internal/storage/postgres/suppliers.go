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

// ErrNotFound is returned when a queried row does not exist
var ErrNotFound = fmt.Errorf("not found")

// SupplierRepository persists suppliers
type SupplierRepository struct {
	db     *DB
	logger arbor.ILogger
}

var _ interfaces.SupplierRepository = (*SupplierRepository)(nil)

// NewSupplierRepository creates the supplier repository
func NewSupplierRepository(db *DB, logger arbor.ILogger) *SupplierRepository {
	return &SupplierRepository{db: db, logger: logger}
}

func (r *SupplierRepository) Create(ctx context.Context, supplier *models.Supplier) error {
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	metadata := supplier.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO suppliers (id, name, source_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		supplier.ID, supplier.Name, string(supplier.SourceType), metadata, supplier.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create supplier: %w", err)
	}
	return nil
}

func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*models.Supplier, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, source_type, metadata, created_at
		FROM suppliers WHERE id = $1`, id)
	return scanSupplier(row)
}

func (r *SupplierRepository) List(ctx context.Context, activeOnly bool) ([]*models.Supplier, error) {
	// activeOnly keeps suppliers that synced within the last 30 days or
	// were never synced yet
	query := `
		SELECT id, name, source_type, metadata, created_at
		FROM suppliers`
	if activeOnly {
		query += ` WHERE last_sync IS NULL OR last_sync > NOW() - INTERVAL '30 days'`
	}
	query += ` ORDER BY name`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []*models.Supplier
	for rows.Next() {
		supplier, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, supplier)
	}
	return suppliers, rows.Err()
}

func (r *SupplierRepository) Update(ctx context.Context, supplier *models.Supplier) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE suppliers SET name = $2, source_type = $3, metadata = $4
		WHERE id = $1`,
		supplier.ID, supplier.Name, string(supplier.SourceType), supplier.Metadata)
	if err != nil {
		return fmt.Errorf("failed to update supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SupplierRepository) SetLastSync(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE suppliers SET last_sync = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to stamp supplier sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSupplier(row pgx.Row) (*models.Supplier, error) {
	var supplier models.Supplier
	var sourceType string
	err := row.Scan(&supplier.ID, &supplier.Name, &sourceType, &supplier.Metadata, &supplier.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan supplier: %w", err)
	}
	supplier.SourceType = models.SourceType(sourceType)
	return &supplier, nil
}
