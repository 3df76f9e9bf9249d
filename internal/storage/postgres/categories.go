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

// CategoryRepository persists the category tree
type CategoryRepository struct {
	db     *DB
	logger arbor.ILogger
}

var _ interfaces.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository creates the category repository
func NewCategoryRepository(db *DB, logger arbor.ILogger) *CategoryRepository {
	return &CategoryRepository{db: db, logger: logger}
}

func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO categories (id, name, parent_id, supplier_id, needs_review, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		category.ID, category.Name, category.ParentID, category.SupplierID,
		category.NeedsReview, category.IsActive, category.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*models.Category, error) {
	row := r.db.pool.QueryRow(ctx, categorySelect+` WHERE id = $1`, id)
	return scanCategory(row)
}

func (r *CategoryRepository) ListAll(ctx context.Context) ([]*models.Category, error) {
	rows, err := r.db.pool.Query(ctx, categorySelect+` WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

func (r *CategoryRepository) ListChildren(ctx context.Context, parentID *string) ([]*models.Category, error) {
	var rows pgx.Rows
	var err error
	if parentID == nil {
		rows, err = r.db.pool.Query(ctx, categorySelect+` WHERE parent_id IS NULL AND is_active ORDER BY name`)
	} else {
		rows, err = r.db.pool.Query(ctx, categorySelect+` WHERE parent_id = $1 AND is_active ORDER BY name`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list child categories: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

func (r *CategoryRepository) SetNeedsReview(ctx context.Context, id string, needsReview bool) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE categories SET needs_review = $2, updated_at = NOW() WHERE id = $1`,
		id, needsReview)
	if err != nil {
		return fmt.Errorf("failed to update category review flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const categorySelect = `
	SELECT id, name, parent_id, supplier_id, needs_review, is_active, created_at, updated_at
	FROM categories`

func scanCategory(row pgx.Row) (*models.Category, error) {
	var category models.Category
	err := row.Scan(&category.ID, &category.Name, &category.ParentID, &category.SupplierID,
		&category.NeedsReview, &category.IsActive, &category.CreatedAt, &category.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &category, nil
}

func collectCategories(rows pgx.Rows) ([]*models.Category, error) {
	var categories []*models.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}
