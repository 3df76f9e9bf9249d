package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// Deliverer pushes one supplier catalog through extraction and matching
type Deliverer interface {
	Deliver(ctx context.Context, supplier *models.Supplier, fileURL string) (string, error)
}

// Runner executes the master sync: under the global lock it walks the
// registered suppliers sequentially and delivers each one's catalog.
// A failed supplier does not stop the run; the coordinator records the
// outcome either way.
type Runner struct {
	coordinator *Coordinator
	suppliers   interfaces.SupplierRepository
	deliverer   Deliverer
	logger      arbor.ILogger
}

// NewRunner creates the master sync runner
func NewRunner(coordinator *Coordinator, suppliers interfaces.SupplierRepository, deliverer Deliverer, logger arbor.ILogger) *Runner {
	return &Runner{
		coordinator: coordinator,
		suppliers:   suppliers,
		deliverer:   deliverer,
		logger:      logger,
	}
}

// Run performs one master sync. A run already in progress elsewhere is
// not an error; this run simply steps aside.
func (r *Runner) Run(ctx context.Context) error {
	owner, err := r.coordinator.AcquireLock(ctx)
	if errors.Is(err, ErrLockHeld) {
		r.logger.Info().Msg("Sync already running, skipping this trigger")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := r.coordinator.ReleaseLock(context.WithoutCancel(ctx), owner); releaseErr != nil {
			r.logger.Warn().Err(releaseErr).Msg("Sync lock release failed")
		}
	}()

	if err := r.coordinator.MarkMaster(ctx, owner); err != nil {
		return err
	}

	suppliers, err := r.suppliers.List(ctx, true)
	if err != nil {
		r.coordinator.MarkFailed(ctx, owner, err)
		return fmt.Errorf("failed to list suppliers: %w", err)
	}

	processed := 0
	failed := 0
	total := len(suppliers)
	for i, supplier := range suppliers {
		if err := r.coordinator.MarkProcessing(ctx, owner, i+1, total); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to publish sync progress")
		}

		fileURL := supplier.Metadata["file_url"]
		if fileURL == "" {
			r.logger.Warn().
				Str("supplier_id", supplier.ID).
				Str("name", supplier.Name).
				Msg("Supplier has no file_url configured, skipping")
			continue
		}

		if _, err := r.deliverer.Deliver(ctx, supplier, fileURL); err != nil {
			failed++
			r.logger.Error().
				Err(err).
				Str("supplier_id", supplier.ID).
				Str("name", supplier.Name).
				Msg("Supplier delivery failed")
			continue
		}
		processed++

		if err := r.suppliers.SetLastSync(ctx, supplier.ID, time.Now().UTC()); err != nil {
			r.logger.Warn().Err(err).Str("supplier_id", supplier.ID).Msg("Failed to stamp supplier sync time")
		}
	}

	if processed == 0 && failed > 0 {
		cause := fmt.Errorf("all %d supplier deliveries failed", failed)
		r.coordinator.MarkFailed(ctx, owner, cause)
		return cause
	}

	if err := r.coordinator.MarkCompleted(ctx, owner, processed); err != nil {
		return err
	}
	r.logger.Info().
		Int("processed", processed).
		Int("failed", failed).
		Msg("Master sync completed")
	return nil
}
