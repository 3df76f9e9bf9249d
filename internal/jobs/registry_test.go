package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRegistry(client, arbor.NewLogger()), mr
}

func newFileJob() *models.Job {
	return models.NewJob(common.NewID(), models.JobKindFileAnalysis, "sup-1", "file://price.xlsx")
}

func TestRegistryCreateAndGet(t *testing.T) {
	registry, mr := newTestRegistry(t)
	ctx := context.Background()

	job := newFileJob()
	require.NoError(t, registry.Create(ctx, job))

	// Stored under the expected key with a TTL
	assert.True(t, mr.Exists("ml-analyze:job:"+job.ID))
	assert.Greater(t, mr.TTL("ml-analyze:job:"+job.ID).Hours(), 167.0)

	loaded, err := registry.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, models.JobStatusPending, loaded.Status)
	assert.Equal(t, "sup-1", loaded.SupplierID)
}

func TestRegistryGetMissing(t *testing.T) {
	registry, _ := newTestRegistry(t)
	_, err := registry.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRegistryProgressMonotonic(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	job := newFileJob()
	require.NoError(t, registry.Create(ctx, job))

	require.NoError(t, registry.UpdateProgress(ctx, job.ID, models.PhaseExtracting, 40, 20, 100))
	require.NoError(t, registry.UpdateProgress(ctx, job.ID, models.PhaseExtracting, 25, 10, 100)) // Lower: dropped

	loaded, err := registry.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, loaded.ProgressPercent)
	assert.Equal(t, 20, loaded.ItemsProcessed)
	assert.Equal(t, models.JobStatusProcessing, loaded.Status)
	assert.NotNil(t, loaded.StartedAt)
}

func TestRegistryTerminalIsFinal(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	job := newFileJob()
	require.NoError(t, registry.Create(ctx, job))
	require.NoError(t, registry.MarkCompleted(ctx, job.ID, models.JobStatusCompleted, &models.JobMetrics{SuccessRate: 1}))

	// Completion of a terminal job is ignored, not an error
	require.NoError(t, registry.MarkCompleted(ctx, job.ID, models.JobStatusFailed, nil))
	// Progress on a terminal job is ignored too
	require.NoError(t, registry.UpdateProgress(ctx, job.ID, models.PhaseExtracting, 10, 1, 10))

	loaded, err := registry.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Status)
	assert.Equal(t, 100.0, loaded.ProgressPercent)
	assert.NotNil(t, loaded.CompletedAt)
	require.NotNil(t, loaded.Metrics)
	assert.Equal(t, 1.0, loaded.Metrics.SuccessRate)
}

func TestRegistryAppendErrorCap(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	job := newFileJob()
	require.NoError(t, registry.Create(ctx, job))

	for i := 0; i < models.MaxJobErrors+5; i++ {
		require.NoError(t, registry.AppendError(ctx, job.ID, "row failed"))
	}

	loaded, err := registry.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Errors, models.MaxJobErrors)
}

func TestRegistryDelete(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	job := newFileJob()
	require.NoError(t, registry.Create(ctx, job))
	require.NoError(t, registry.Delete(ctx, job.ID))

	assert.ErrorIs(t, registry.Delete(ctx, job.ID), ErrJobNotFound)

	exists, err := registry.Exists(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegistryTTLRefreshedOnWrite(t *testing.T) {
	registry, mr := newTestRegistry(t)
	ctx := context.Background()

	job := newFileJob()
	require.NoError(t, registry.Create(ctx, job))

	// Age the key, then touch the job
	mr.FastForward(72 * time.Hour)
	require.NoError(t, registry.AppendError(ctx, job.ID, "still running"))

	assert.Greater(t, mr.TTL("ml-analyze:job:"+job.ID).Hours(), 167.0)
}
