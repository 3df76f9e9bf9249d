package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
)

// promoteBatch bounds how many delayed messages move per dequeue
const promoteBatch = 100

// RedisQueue is a FIFO work queue on a Redis list. Retries wait in a
// delayed zset scored by their ready time and are promoted back onto the
// list on dequeue; exhausted messages move to a dead-letter zset scored
// by failure time and pruned by age.
// Keys: arq:queue:{name}, arq:delayed:{name}, arq:dlq:{name}.
type RedisQueue struct {
	client            *redis.Client
	queueKey          string
	delayedKey        string
	dlqKey            string
	maxTries          int
	initialBackoff    time.Duration
	backoffMultiplier float64
	maxBackoff        time.Duration
	dlqRetention      time.Duration
	logger            arbor.ILogger
}

// NewRedisQueue creates a queue for the configured names. A zero initial
// backoff requeues retries immediately.
func NewRedisQueue(client *redis.Client, config *common.QueueConfig, logger arbor.ILogger) *RedisQueue {
	maxTries := config.MaxTries
	if maxTries <= 0 {
		maxTries = 3
	}
	multiplier := config.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 2
	}
	retentionDays := config.DLQRetentionDays
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &RedisQueue{
		client:            client,
		queueKey:          "arq:queue:" + config.QueueName,
		delayedKey:        "arq:delayed:" + config.QueueName,
		dlqKey:            "arq:dlq:" + config.DLQName,
		maxTries:          maxTries,
		initialBackoff:    common.ParseDurationOr(config.InitialBackoff, 0),
		backoffMultiplier: multiplier,
		maxBackoff:        common.ParseDurationOr(config.MaxBackoff, time.Minute),
		dlqRetention:      time.Duration(retentionDays) * 24 * time.Hour,
		logger:            logger,
	}
}

var _ interfaces.Queue = (*RedisQueue)(nil)

// Enqueue pushes a message onto the tail of the queue
func (q *RedisQueue) Enqueue(ctx context.Context, msg *interfaces.QueueMessage) error {
	if msg.ID == "" {
		msg.ID = common.NewID()
	}
	if msg.MaxTries == 0 {
		msg.MaxTries = q.maxTries
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}
	if err := q.client.RPush(ctx, q.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue message %s: %w", msg.ID, err)
	}

	q.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Msg("Message enqueued")
	return nil
}

// Dequeue pops the oldest message, nil when the queue is empty. Delayed
// retries whose backoff has elapsed are promoted first.
func (q *RedisQueue) Dequeue(ctx context.Context) (*interfaces.QueueMessage, error) {
	if err := q.promoteDue(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("Failed to promote delayed messages")
	}

	data, err := q.client.LPop(ctx, q.queueKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var msg interfaces.QueueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("corrupt queue message: %w", err)
	}
	return &msg, nil
}

// promoteDue moves delayed messages whose ready time has passed back onto
// the main list, preserving their delay order
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return err
		}
		// Another worker promoted it first
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, q.queueKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// retryDelay returns the backoff before retry number tries:
// initial * multiplier^(tries-1), capped at the ceiling
func (q *RedisQueue) retryDelay(tries int) time.Duration {
	if q.initialBackoff <= 0 || tries <= 0 {
		return 0
	}
	delay := q.initialBackoff
	for i := 1; i < tries; i++ {
		delay = time.Duration(float64(delay) * q.backoffMultiplier)
		if delay >= q.maxBackoff {
			return q.maxBackoff
		}
	}
	if delay > q.maxBackoff {
		return q.maxBackoff
	}
	return delay
}

// deadLetter is the envelope stored in the dead-letter zset
type deadLetter struct {
	Message  *interfaces.QueueMessage `json:"message"`
	Cause    string                   `json:"cause"`
	FailedAt time.Time                `json:"failed_at"`
}

// Retry schedules the message for another attempt after its backoff, or
// moves it to the dead-letter zset once max tries is reached
func (q *RedisQueue) Retry(ctx context.Context, msg *interfaces.QueueMessage, cause error) error {
	msg.Tries++
	if msg.Tries >= msg.MaxTries {
		return q.deadLetterMessage(ctx, msg, cause)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal retry message: %w", err)
	}

	delay := q.retryDelay(msg.Tries)
	if delay <= 0 {
		if err := q.client.RPush(ctx, q.queueKey, data).Err(); err != nil {
			return fmt.Errorf("failed to requeue message %s: %w", msg.ID, err)
		}
	} else {
		readyAt := time.Now().Add(delay)
		err := q.client.ZAdd(ctx, q.delayedKey, redis.Z{
			Score:  float64(readyAt.UnixMilli()),
			Member: data,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to delay message %s: %w", msg.ID, err)
		}
	}

	q.logger.Warn().
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Int("tries", msg.Tries).
		Int("max_tries", msg.MaxTries).
		Dur("backoff", delay).
		Str("cause", cause.Error()).
		Msg("Message scheduled for retry")
	return nil
}

func (q *RedisQueue) deadLetterMessage(ctx context.Context, msg *interfaces.QueueMessage, cause error) error {
	failedAt := time.Now().UTC()
	envelope := deadLetter{
		Message:  msg,
		Cause:    cause.Error(),
		FailedAt: failedAt,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	err = q.client.ZAdd(ctx, q.dlqKey, redis.Z{
		Score:  float64(failedAt.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
	}

	// Age out entries past the retention window
	cutoff := strconv.FormatInt(failedAt.Add(-q.dlqRetention).UnixMilli(), 10)
	if err := q.client.ZRemRangeByScore(ctx, q.dlqKey, "-inf", cutoff).Err(); err != nil {
		q.logger.Warn().Err(err).Msg("Dead-letter retention sweep failed")
	}

	q.logger.Error().
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Int("tries", msg.Tries).
		Str("cause", cause.Error()).
		Msg("Message moved to dead-letter queue")
	return nil
}

// Depth returns the number of waiting messages, delayed retries included
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, q.queueKey).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey).Result()
	if err != nil {
		return 0, err
	}
	return ready + delayed, nil
}

// DeadLetterDepth returns the size of the dead-letter zset
func (q *RedisQueue) DeadLetterDepth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.dlqKey).Result()
}
