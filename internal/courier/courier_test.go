package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/jobs"
	"github.com/ternarybob/supplyline/internal/models"
)

// scriptedETL serves the analyze API, walking through a fixed sequence of
// remote job snapshots, one per status poll.
type scriptedETL struct {
	mu        sync.Mutex
	snapshots []*models.Job
	polls     int
	triggered *triggerRequest
}

func (s *scriptedETL) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /analyze/file", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var req triggerRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.triggered = &req
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(triggerResponse{JobID: "etl-job-1", Status: "pending"})
	})
	mux.HandleFunc("GET /analyze/status/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		idx := s.polls
		if idx >= len(s.snapshots) {
			idx = len(s.snapshots) - 1
		}
		s.polls++
		json.NewEncoder(w).Encode(s.snapshots[idx])
	})
	return mux
}

type captureQueue struct {
	mu       sync.Mutex
	enqueued []*interfaces.QueueMessage
}

func (q *captureQueue) Enqueue(ctx context.Context, msg *interfaces.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msg)
	return nil
}
func (q *captureQueue) Dequeue(ctx context.Context) (*interfaces.QueueMessage, error) {
	return nil, nil
}
func (q *captureQueue) Retry(ctx context.Context, msg *interfaces.QueueMessage, cause error) error {
	return nil
}
func (q *captureQueue) Depth(ctx context.Context) (int64, error)           { return 0, nil }
func (q *captureQueue) DeadLetterDepth(ctx context.Context) (int64, error) { return 0, nil }

func newTestCourier(t *testing.T, etl *scriptedETL) (*Courier, *captureQueue, interfaces.JobRegistry, string) {
	t.Helper()

	server := httptest.NewServer(etl.handler())
	t.Cleanup(server.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	registry := jobs.NewRegistry(client, arbor.NewLogger())

	uploads := t.TempDir()
	queue := &captureQueue{}
	config := &common.CourierConfig{
		ETLBaseURL:     server.URL,
		PollInterval:   "10ms",
		PollTimeout:    "2s",
		HealthTimeout:  "1s",
		TriggerTimeout: "1s",
		StatusTimeout:  "1s",
	}
	resolver := NewFileResolver(&common.UploadsConfig{Dir: uploads}, arbor.NewLogger())
	etlClient := NewETLClient(config, arbor.NewLogger())
	courier := NewCourier(resolver, etlClient, registry, queue, config, arbor.NewLogger())
	return courier, queue, registry, uploads
}

func remoteSnapshot(status models.JobStatus, phase models.JobPhase, percent float64, processed, total int) *models.Job {
	job := models.NewJob("etl-job-1", models.JobKindFileAnalysis, "sup-1", "")
	job.Status = status
	job.Phase = phase
	job.ProgressPercent = percent
	job.ItemsProcessed = processed
	job.ItemsTotal = total
	return job
}

func TestDeliverMirrorsRemoteJobToCompletion(t *testing.T) {
	completed := remoteSnapshot(models.JobStatusCompleted, models.PhaseComplete, 100, 120, 120)
	completed.Metrics = &models.JobMetrics{TotalRows: 120, ParsedRows: 120, SuccessRate: 1}
	etl := &scriptedETL{snapshots: []*models.Job{
		remoteSnapshot(models.JobStatusProcessing, models.PhaseExtracting, 40, 48, 120),
		remoteSnapshot(models.JobStatusProcessing, models.PhaseNormalizing, 80, 96, 120),
		completed,
	}}
	courier, queue, registry, uploads := newTestCourier(t, etl)

	path := filepath.Join(uploads, "catalog.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("workbook"), 0o644))

	supplier := &models.Supplier{ID: "sup-1", Name: "ООО Поставщик", SourceType: models.SourceExcel}
	jobID, err := courier.Deliver(context.Background(), supplier, "catalog.xlsx")
	require.NoError(t, err)

	job, err := registry.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, float64(100), job.ProgressPercent)
	assert.Equal(t, 120, job.ItemsProcessed)
	require.NotNil(t, job.Metrics)
	assert.Equal(t, 1.0, job.Metrics.SuccessRate)
	assert.Equal(t, "etl-job-1", job.Metadata["etl_job_id"])

	// Remote trigger carried the resolved local path
	require.NotNil(t, etl.triggered)
	assert.Equal(t, "sup-1", etl.triggered.SupplierID)
	assert.True(t, strings.HasSuffix(etl.triggered.FileURL, "catalog.xlsx"))

	// Matching queued after success
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "batch_match", queue.enqueued[0].Type)
	assert.Equal(t, "sup-1", queue.enqueued[0].Payload["supplier_id"])
}

func TestDeliverRemoteFailureFailsJobWithoutMatching(t *testing.T) {
	failed := remoteSnapshot(models.JobStatusFailed, models.PhaseFailed, 100, 0, 0)
	failed.Errors = []string{"unsupported file type: .docx"}
	etl := &scriptedETL{snapshots: []*models.Job{failed}}
	courier, queue, registry, uploads := newTestCourier(t, etl)

	path := filepath.Join(uploads, "notes.docx")
	require.NoError(t, os.WriteFile(path, []byte("doc"), 0o644))

	supplier := &models.Supplier{ID: "sup-1", Name: "ООО Поставщик", SourceType: models.SourceExcel}
	jobID, err := courier.Deliver(context.Background(), supplier, "notes.docx")
	require.Error(t, err)

	job, getErr := registry.Get(context.Background(), jobID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Empty(t, queue.enqueued)
}

func TestDeliverUnresolvableFileFailsEarly(t *testing.T) {
	etl := &scriptedETL{snapshots: []*models.Job{remoteSnapshot(models.JobStatusCompleted, models.PhaseComplete, 100, 0, 0)}}
	courier, queue, registry, _ := newTestCourier(t, etl)

	supplier := &models.Supplier{ID: "sup-1", Name: "ООО Поставщик", SourceType: models.SourceCSV}
	jobID, err := courier.Deliver(context.Background(), supplier, "../outside.csv")
	require.Error(t, err)

	job, getErr := registry.Get(context.Background(), jobID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Errors)
	assert.Nil(t, etl.triggered)
	assert.Empty(t, queue.enqueued)
}
