package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobKind distinguishes the asynchronous request types
type JobKind string

const (
	JobKindFileAnalysis JobKind = "file_analysis"
	JobKindBatchMatch   JobKind = "batch_match"
	JobKindVision       JobKind = "vision"
)

// JobStatus is the coarse terminal-oriented state of a job
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
)

// IsTerminal reports whether the status is final and must not be re-entered
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCompletedWithErrors:
		return true
	}
	return false
}

// JobPhase is the processing sub-step within a job
type JobPhase string

const (
	PhasePending             JobPhase = "pending"
	PhaseDownloading         JobPhase = "downloading"
	PhaseAnalyzing           JobPhase = "analyzing"
	PhaseExtracting          JobPhase = "extracting"
	PhaseNormalizing         JobPhase = "normalizing"
	PhaseComplete            JobPhase = "complete"
	PhaseFailed              JobPhase = "failed"
	PhaseCompletedWithErrors JobPhase = "completed_with_errors"
)

// MaxJobErrors bounds the error list on a job; oldest entries are dropped first
const MaxJobErrors = 10

// JobMetrics is the parsing-quality summary written once at completion
type JobMetrics struct {
	TotalRows         int     `json:"total_rows"`
	ParsedRows        int     `json:"parsed_rows"`
	SuccessRate       float64 `json:"success_rate"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	CategoriesMatched int     `json:"categories_matched"`
	CategoriesCreated int     `json:"categories_created"`
	ReviewQueueCount  int     `json:"review_queue_count"`
	AverageSimilarity float64 `json:"average_similarity"`
}

// Job is the durable status record for an async request, held in the
// job registry with a 7-day TTL from last write.
//
// Invariants: terminal status implies CompletedAt set; ProgressPercent is
// monotonic non-decreasing; terminal states are never re-entered.
type Job struct {
	ID                    string                 `json:"job_id"`
	Kind                  JobKind                `json:"kind"`
	Status                JobStatus              `json:"status"`
	Phase                 JobPhase               `json:"phase"`
	ProgressPercent       float64                `json:"progress_percentage"`
	ItemsProcessed        int                    `json:"items_processed"`
	ItemsTotal            int                    `json:"items_total"`
	SuccessfulExtractions int                    `json:"successful_extractions"`
	FailedExtractions     int                    `json:"failed_extractions"`
	DuplicatesRemoved     int                    `json:"duplicates_removed"`
	Errors                []string               `json:"errors"`
	SupplierID            string                 `json:"supplier_id,omitempty"`
	FileURL               string                 `json:"file_url,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	StartedAt             *time.Time             `json:"started_at,omitempty"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
	Metrics               *JobMetrics            `json:"metrics,omitempty"`
}

// NewJob creates a fresh pending job
func NewJob(id string, kind JobKind, supplierID, fileURL string) *Job {
	return &Job{
		ID:         id,
		Kind:       kind,
		Status:     JobStatusPending,
		Phase:      PhasePending,
		SupplierID: supplierID,
		FileURL:    fileURL,
		Metadata:   make(map[string]interface{}),
		CreatedAt:  time.Now().UTC(),
	}
}

// AppendError appends an error string, dropping the oldest beyond the cap
func (j *Job) AppendError(msg string) {
	j.Errors = append(j.Errors, msg)
	if len(j.Errors) > MaxJobErrors {
		j.Errors = j.Errors[len(j.Errors)-MaxJobErrors:]
	}
}

// SetProgress applies a monotonic progress update; lower values are dropped
func (j *Job) SetProgress(percent float64, processed, total int) {
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}
	if processed > j.ItemsProcessed {
		j.ItemsProcessed = processed
	}
	if total > 0 {
		j.ItemsTotal = total
	}
}

// MarkStarted transitions a pending job to processing
func (j *Job) MarkStarted() {
	j.Status = JobStatusProcessing
	now := time.Now().UTC()
	j.StartedAt = &now
}

// MarkCompleted stamps a terminal status, phase and full progress
func (j *Job) MarkCompleted(status JobStatus, phase JobPhase) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s already terminal with status %s", j.ID, j.Status)
	}
	j.Status = status
	j.Phase = phase
	j.ProgressPercent = 100
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// MarkFailed stamps the failed terminal state with an error message
func (j *Job) MarkFailed(msg string) error {
	j.AppendError(msg)
	return j.MarkCompleted(JobStatusFailed, PhaseFailed)
}

// ToJSON serializes the job for registry storage
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobFromJSON deserializes a job from registry storage
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
