package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/jobs"
	"github.com/ternarybob/supplyline/internal/models"
)

func newTestPoller(t *testing.T) (*TriggerPoller, *RedisQueue, *jobs.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := jobs.NewRegistry(client, arbor.NewLogger())
	q := NewRedisQueue(client, &common.QueueConfig{QueueName: "supplyline", DLQName: "supplyline", MaxTries: 3}, arbor.NewLogger())
	poller := NewTriggerPoller(client, registry, q, arbor.NewLogger())
	return poller, q, registry, mr
}

func TestParseTriggerQueuesBatchMatch(t *testing.T) {
	poller, q, _, mr := newTestPoller(t)
	ctx := context.Background()

	mr.Lpush("parse:triggers", "sup-1")
	require.NoError(t, poller.PollParseTriggers(ctx))

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "batch_match", msg.Type)
	assert.Equal(t, "sup-1", msg.Payload["supplier_id"])

	// List is drained
	assert.False(t, mr.Exists("parse:triggers"))
}

func TestRetryTriggerRequeuesFailedJob(t *testing.T) {
	poller, q, registry, mr := newTestPoller(t)
	ctx := context.Background()

	failed := models.NewJob(common.NewID(), models.JobKindFileAnalysis, "sup-1", "uploads/price.xlsx")
	require.NoError(t, registry.Create(ctx, failed))
	require.NoError(t, registry.MarkCompleted(ctx, failed.ID, models.JobStatusFailed, nil))

	mr.Lpush("retry:triggers", failed.ID)
	require.NoError(t, poller.PollRetryTriggers(ctx))

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "file_analysis", msg.Type)
	assert.Equal(t, "uploads/price.xlsx", msg.Payload["file_url"])

	// A fresh job was created; the failed one stays terminal
	newJobID := msg.Payload["job_id"].(string)
	assert.NotEqual(t, failed.ID, newJobID)
	retried, err := registry.Get(ctx, newJobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, retried.Status)
	assert.Equal(t, failed.ID, retried.Metadata["retried_from"])
}

func TestRetryTriggerDropsNonFailedJobs(t *testing.T) {
	poller, q, registry, mr := newTestPoller(t)
	ctx := context.Background()

	running := models.NewJob(common.NewID(), models.JobKindFileAnalysis, "sup-1", "a.csv")
	require.NoError(t, registry.Create(ctx, running))

	mr.Lpush("retry:triggers", running.ID)
	mr.Lpush("retry:triggers", "unknown-job-id")
	require.NoError(t, poller.PollRetryTriggers(ctx))

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg)
}
