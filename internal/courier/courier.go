package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// pollOutcome is the state-machine verdict after one status poll
type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollDone
	pollFailed
)

// Courier drives one supplier catalog through the extraction service:
// resolve the file, health-check, trigger analysis, poll to a terminal
// state while mirroring progress into the delivery job, then hand the
// new items to batch matching.
type Courier struct {
	resolver *FileResolver
	client   *ETLClient
	registry interfaces.JobRegistry
	queue    interfaces.Queue
	logger   arbor.ILogger

	pollInterval time.Duration
	pollTimeout  time.Duration

	// Local paths currently being processed; the cleanup task skips these
	inFlight sync.Map
}

// NewCourier creates the delivery courier
func NewCourier(
	resolver *FileResolver,
	client *ETLClient,
	registry interfaces.JobRegistry,
	queue interfaces.Queue,
	config *common.CourierConfig,
	logger arbor.ILogger,
) *Courier {
	return &Courier{
		resolver:     resolver,
		client:       client,
		registry:     registry,
		queue:        queue,
		logger:       logger,
		pollInterval: common.ParseDurationOr(config.PollInterval, 10*time.Second),
		pollTimeout:  common.ParseDurationOr(config.PollTimeout, 30*time.Minute),
	}
}

// IsInFlight reports whether a local path belongs to an active delivery
func (c *Courier) IsInFlight(path string) bool {
	_, ok := c.inFlight.Load(path)
	return ok
}

// Deliver runs one supplier file end to end, returning the delivery job id.
// The delivery job mirrors the remote analysis job's phase, progress and
// metrics so callers only ever watch one record.
func (c *Courier) Deliver(ctx context.Context, supplier *models.Supplier, fileURL string) (string, error) {
	job := models.NewJob(common.NewID(), models.JobKindFileAnalysis, supplier.ID, fileURL)
	if err := c.registry.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create delivery job: %w", err)
	}

	c.registry.UpdateProgress(ctx, job.ID, models.PhaseDownloading, 2, 0, 0)

	path, _, err := c.resolver.Resolve(ctx, fileURL)
	if err != nil {
		return job.ID, c.fail(ctx, job.ID, fmt.Errorf("file resolution failed: %w", err))
	}
	c.inFlight.Store(path, struct{}{})
	defer c.inFlight.Delete(path)

	if err := c.client.Health(ctx); err != nil {
		return job.ID, c.fail(ctx, job.ID, err)
	}

	remoteJobID, err := c.client.Trigger(ctx, supplier.ID, path)
	if err != nil {
		return job.ID, c.fail(ctx, job.ID, err)
	}
	c.recordRemoteJob(ctx, job.ID, remoteJobID)

	c.logger.Info().
		Str("job_id", job.ID).
		Str("etl_job_id", remoteJobID).
		Str("supplier_id", supplier.ID).
		Msg("Analysis triggered, polling for completion")

	remote, err := c.poll(ctx, job.ID, remoteJobID)
	if err != nil {
		return job.ID, c.fail(ctx, job.ID, err)
	}

	if err := c.registry.MarkCompleted(ctx, job.ID, remote.Status, remote.Metrics); err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Delivery job finalization failed")
	}

	if remote.Status == models.JobStatusFailed {
		return job.ID, fmt.Errorf("analysis failed: %v", remote.Errors)
	}

	// Successful extraction feeds the matcher
	if err := c.queue.Enqueue(ctx, &interfaces.QueueMessage{
		Type: "batch_match",
		Payload: map[string]interface{}{
			"supplier_id": supplier.ID,
			"job_id":      job.ID,
		},
	}); err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue batch matching")
	}

	return job.ID, nil
}

// poll drives the status state machine until a terminal outcome or the
// overall deadline. Transient poll failures continue; the deadline bounds
// how long a silent extraction service can hold a delivery.
func (c *Courier) poll(ctx context.Context, jobID, remoteJobID string) (*models.Job, error) {
	deadline := time.NewTimer(c.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("analysis did not finish within %s", c.pollTimeout)
		case <-ticker.C:
			outcome, remote := c.step(ctx, jobID, remoteJobID)
			switch outcome {
			case pollDone:
				return remote, nil
			case pollFailed:
				return remote, nil
			case pollContinue:
			}
		}
	}
}

// step performs one poll, mirroring the remote state into the delivery job
func (c *Courier) step(ctx context.Context, jobID, remoteJobID string) (pollOutcome, *models.Job) {
	remote, err := c.client.Status(ctx, remoteJobID)
	if err != nil {
		c.logger.Warn().Err(err).Str("etl_job_id", remoteJobID).Msg("Status poll failed, will retry")
		return pollContinue, nil
	}

	if err := c.registry.UpdateProgress(ctx, jobID, remote.Phase, remote.ProgressPercent, remote.ItemsProcessed, remote.ItemsTotal); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress mirror failed")
	}

	switch remote.Status {
	case models.JobStatusCompleted, models.JobStatusCompletedWithErrors:
		return pollDone, remote
	case models.JobStatusFailed:
		return pollFailed, remote
	default:
		return pollContinue, remote
	}
}

func (c *Courier) recordRemoteJob(ctx context.Context, jobID, remoteJobID string) {
	job, err := c.registry.Get(ctx, jobID)
	if err != nil {
		return
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]interface{})
	}
	job.Metadata["etl_job_id"] = remoteJobID
	if err := c.registry.Update(ctx, job); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record remote job id")
	}
}

func (c *Courier) fail(ctx context.Context, jobID string, cause error) error {
	if err := c.registry.AppendError(ctx, jobID, cause.Error()); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record delivery error")
	}
	if err := c.registry.MarkCompleted(ctx, jobID, models.JobStatusFailed, nil); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to finalize delivery job")
	}
	c.logger.Error().Err(cause).Str("job_id", jobID).Msg("Delivery failed")
	return cause
}
