package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// jobKeyPrefix namespaces job documents in Redis
const jobKeyPrefix = "ml-analyze:job:"

// jobTTL is the retention for job documents, refreshed on every write
const jobTTL = 7 * 24 * time.Hour

// ErrJobNotFound is returned when a job id has no registry entry
var ErrJobNotFound = errors.New("job not found")

// Registry stores job documents as JSON in Redis under ml-analyze:job:{id}.
// Every write rewrites the full document and refreshes the TTL, so a job's
// retention clock restarts on activity.
type Registry struct {
	client *redis.Client
	logger arbor.ILogger
}

// NewRegistry creates a Redis-backed job registry
func NewRegistry(client *redis.Client, logger arbor.ILogger) *Registry {
	return &Registry{client: client, logger: logger}
}

var _ interfaces.JobRegistry = (*Registry)(nil)

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// Create writes a fresh job document
func (r *Registry) Create(ctx context.Context, job *models.Job) error {
	data, err := job.ToJSON()
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, jobKey(job.ID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	r.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("supplier_id", job.SupplierID).
		Msg("Job registered")
	return nil
}

// Get loads a job document, ErrJobNotFound when missing or expired
func (r *Registry) Get(ctx context.Context, jobID string) (*models.Job, error) {
	data, err := r.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	return models.JobFromJSON(data)
}

// Update rewrites the full document and refreshes the TTL
func (r *Registry) Update(ctx context.Context, job *models.Job) error {
	data, err := job.ToJSON()
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, jobKey(job.ID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateProgress applies a monotonic progress update: a lower percentage
// than the stored one is dropped silently. Terminal jobs are never touched.
func (r *Registry) UpdateProgress(ctx context.Context, jobID string, phase models.JobPhase, percent float64, processed, total int) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if job.Status == models.JobStatusPending {
		job.MarkStarted()
	}
	job.Phase = phase
	job.SetProgress(percent, processed, total)
	return r.Update(ctx, job)
}

// AppendError records a job error, bounded by the job's error cap
func (r *Registry) AppendError(ctx context.Context, jobID string, message string) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.AppendError(message)
	return r.Update(ctx, job)
}

// MarkCompleted stamps a terminal status with optional metrics.
// A job that is already terminal stays untouched.
func (r *Registry) MarkCompleted(ctx context.Context, jobID string, status models.JobStatus, metrics *models.JobMetrics) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		r.logger.Warn().
			Str("job_id", jobID).
			Str("status", string(job.Status)).
			Msg("Ignoring completion of already-terminal job")
		return nil
	}

	phase := models.PhaseComplete
	switch status {
	case models.JobStatusFailed:
		phase = models.PhaseFailed
	case models.JobStatusCompletedWithErrors:
		phase = models.PhaseCompletedWithErrors
	}
	if err := job.MarkCompleted(status, phase); err != nil {
		return err
	}
	job.Metrics = metrics

	if err := r.Update(ctx, job); err != nil {
		return err
	}
	r.logger.Info().
		Str("job_id", jobID).
		Str("status", string(status)).
		Msg("Job completed")
	return nil
}

// Delete removes a job document. Deleting a missing job returns
// ErrJobNotFound so the API can answer 404.
func (r *Registry) Delete(ctx context.Context, jobID string) error {
	deleted, err := r.client.Del(ctx, jobKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	if deleted == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Exists reports whether a job document is present
func (r *Registry) Exists(ctx context.Context, jobID string) (bool, error) {
	n, err := r.client.Exists(ctx, jobKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check job %s: %w", jobID, err)
	}
	return n > 0, nil
}
