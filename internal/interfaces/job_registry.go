package interfaces

import (
	"context"

	"github.com/ternarybob/supplyline/internal/models"
)

// JobRegistry stores job lifecycle state in Redis under ml-analyze:job:{id}
// with a 7-day TTL. All mutators re-read, modify and write back the full
// job document.
type JobRegistry interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	// UpdateProgress applies monotonic progress: a lower percentage than the
	// stored one is dropped silently
	UpdateProgress(ctx context.Context, jobID string, phase models.JobPhase, percent float64, processed, total int) error
	AppendError(ctx context.Context, jobID string, message string) error
	MarkCompleted(ctx context.Context, jobID string, status models.JobStatus, metrics *models.JobMetrics) error
	Delete(ctx context.Context, jobID string) error
	Exists(ctx context.Context, jobID string) (bool, error)
}
