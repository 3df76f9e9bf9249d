package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := &common.SyncConfig{IntervalHours: 8, LockTTL: "1h"}
	return NewCoordinator(client, config, arbor.NewLogger()), mr
}

func TestLockMutualExclusion(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	owner, err := c.AcquireLock(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, owner)

	_, err = c.AcquireLock(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	locked, err := c.IsLocked(ctx)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLockReleaseByOwnerOnly(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	owner, err := c.AcquireLock(ctx)
	require.NoError(t, err)

	// A non-owner release is a no-op
	require.NoError(t, c.ReleaseLock(ctx, "someone-else"))
	locked, _ := c.IsLocked(ctx)
	assert.True(t, locked)

	require.NoError(t, c.ReleaseLock(ctx, owner))
	locked, _ = c.IsLocked(ctx)
	assert.False(t, locked)

	// Lock is free again
	_, err = c.AcquireLock(ctx)
	assert.NoError(t, err)
}

func TestLockExpiresByTTL(t *testing.T) {
	c, mr := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.AcquireLock(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	// A crashed holder's lock frees itself
	_, err = c.AcquireLock(ctx)
	assert.NoError(t, err)
}

func TestStatusLifecycle(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	// No status yet reads as idle
	status, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncIdle, status.State)

	owner, err := c.AcquireLock(ctx)
	require.NoError(t, err)
	require.NoError(t, c.MarkMaster(ctx, owner))

	status, err = c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncMaster, status.State)
	assert.NotNil(t, status.StartedAt)

	require.NoError(t, c.MarkProcessing(ctx, owner, 2, 5))
	status, err = c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncProcessing, status.State)
	assert.Equal(t, 2, status.Current)
	assert.Equal(t, 5, status.Total)
	assert.NotNil(t, status.StartedAt) // Preserved from the master phase

	require.NoError(t, c.MarkCompleted(ctx, owner, 5))
	status, err = c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncIdle, status.State)
	assert.Equal(t, 5, status.Suppliers)
	assert.NotNil(t, status.StartedAt)
	assert.NotNil(t, status.FinishedAt)

	lastRun, err := c.LastRun(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), lastRun, time.Minute)
}

func TestStatusFailure(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	owner, _ := c.AcquireLock(ctx)
	require.NoError(t, c.MarkMaster(ctx, owner))
	require.NoError(t, c.MarkFailed(ctx, owner, errors.New("supplier fetch failed")))

	// Failure returns to idle carrying the cause
	status, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncIdle, status.State)
	assert.Contains(t, status.Error, "supplier fetch failed")
	assert.NotNil(t, status.FinishedAt)

	// Failure never stamps last_run
	lastRun, err := c.LastRun(ctx)
	require.NoError(t, err)
	assert.True(t, lastRun.IsZero())
}

func TestManualTrigger(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	got, err := c.PopManualTrigger(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, c.RequestManualSync(ctx))
	got, err = c.PopManualTrigger(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = c.PopManualTrigger(ctx)
	require.NoError(t, err)
	assert.False(t, got)
}
