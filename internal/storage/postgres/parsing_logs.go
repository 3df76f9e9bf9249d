package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// ParsingLogRepository persists pipeline diagnostics
type ParsingLogRepository struct {
	db     *DB
	logger arbor.ILogger
}

var _ interfaces.ParsingLogRepository = (*ParsingLogRepository)(nil)

// NewParsingLogRepository creates the parsing log repository
func NewParsingLogRepository(db *DB, logger arbor.ILogger) *ParsingLogRepository {
	return &ParsingLogRepository{db: db, logger: logger}
}

func (r *ParsingLogRepository) Append(ctx context.Context, log *models.ParsingLog) error {
	if log.ID == "" {
		log.ID = common.NewID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO parsing_logs (id, task_id, supplier_id, error_type, message, row_number, row_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.TaskID, log.SupplierID, string(log.ErrorType),
		log.Message, log.RowNumber, log.RowData, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append parsing log: %w", err)
	}
	return nil
}

func (r *ParsingLogRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]*models.ParsingLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, task_id, supplier_id, error_type, message, row_number, row_data, created_at
		FROM parsing_logs
		WHERE task_id = $1 ORDER BY created_at DESC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list parsing logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ParsingLog
	for rows.Next() {
		var log models.ParsingLog
		var errorType string
		if err := rows.Scan(&log.ID, &log.TaskID, &log.SupplierID, &errorType,
			&log.Message, &log.RowNumber, &log.RowData, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan parsing log: %w", err)
		}
		log.ErrorType = models.ErrorType(errorType)
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// DeleteOlderThan removes logs past the retention window
func (r *ParsingLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM parsing_logs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune parsing logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
