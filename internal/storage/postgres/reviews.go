package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// ReviewRepository persists the manual match review queue
type ReviewRepository struct {
	db     *DB
	logger arbor.ILogger
}

var _ interfaces.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository creates the review queue repository
func NewReviewRepository(db *DB, logger arbor.ILogger) *ReviewRepository {
	return &ReviewRepository{db: db, logger: logger}
}

// Enqueue upserts on supplier_item_id: a rematch of an item already in
// the queue refreshes its candidates and expiry instead of stacking a
// second entry.
func (r *ReviewRepository) Enqueue(ctx context.Context, entry *models.ReviewEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO match_review_queue
			(id, supplier_item_id, candidate_products, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (supplier_item_id) DO UPDATE SET
			candidate_products = EXCLUDED.candidate_products,
			status = EXCLUDED.status,
			reviewed_by = NULL,
			reviewed_at = NULL,
			expires_at = EXCLUDED.expires_at`,
		entry.ID, entry.SupplierItemID, entry.Candidates, string(entry.Status),
		entry.CreatedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue review entry: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*models.ReviewEntry, error) {
	row := r.db.pool.QueryRow(ctx, reviewSelect+` WHERE id = $1`, id)
	return scanReviewEntry(row)
}

func (r *ReviewRepository) ListPending(ctx context.Context, limit, offset int) ([]*models.ReviewEntry, error) {
	rows, err := r.db.pool.Query(ctx, reviewSelect+`
		WHERE status = 'pending' ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	defer rows.Close()

	var entries []*models.ReviewEntry
	for rows.Next() {
		entry, err := scanReviewEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *ReviewRepository) SetStatus(ctx context.Context, id string, status models.ReviewStatus, resolvedBy string) error {
	var tag pgconn.CommandTag
	var err error
	if resolvedBy != "" {
		tag, err = r.db.pool.Exec(ctx, `
			UPDATE match_review_queue
			SET status = $2, reviewed_by = $3, reviewed_at = NOW()
			WHERE id = $1`, id, string(status), resolvedBy)
	} else {
		tag, err = r.db.pool.Exec(ctx, `
			UPDATE match_review_queue SET status = $2 WHERE id = $1`, id, string(status))
	}
	if err != nil {
		return fmt.Errorf("failed to set review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpirePending marks overdue pending entries as expired in one statement
func (r *ReviewRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE match_review_queue
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire review entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const reviewSelect = `
	SELECT id, supplier_item_id, candidate_products, status, reviewed_by, reviewed_at, created_at, expires_at
	FROM match_review_queue`

func scanReviewEntry(row pgx.Row) (*models.ReviewEntry, error) {
	var entry models.ReviewEntry
	var status string
	err := row.Scan(&entry.ID, &entry.SupplierItemID, &entry.Candidates, &status,
		&entry.ReviewedBy, &entry.ReviewedAt, &entry.CreatedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan review entry: %w", err)
	}
	entry.Status = models.ReviewStatus(status)
	return &entry, nil
}
