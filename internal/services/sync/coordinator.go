package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

const (
	lockKey    = "sync:lock"
	statusKey  = "sync:status"
	lastRunKey = "sync:last_run"
	triggerKey = "sync:trigger"
)

// SyncState is the phase published under sync:status. A run moves
// idle -> syncing_master -> processing_suppliers -> idle; the terminal
// idle status carries the outcome (supplier count or error).
type SyncState string

const (
	SyncIdle       SyncState = "idle"
	SyncMaster     SyncState = "syncing_master"
	SyncProcessing SyncState = "processing_suppliers"
)

// Status is the JSON document stored under sync:status. Current and
// Total report per-supplier progress during processing_suppliers.
type Status struct {
	State      SyncState  `json:"state"`
	Owner      string     `json:"owner,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Suppliers  int        `json:"suppliers,omitempty"`
	Current    int        `json:"current,omitempty"`
	Total      int        `json:"total,omitempty"`
}

// ErrLockHeld is returned when another sync run holds the global lock
var ErrLockHeld = fmt.Errorf("sync lock held by another run")

// releaseScript deletes the lock only when the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Coordinator serializes master sync runs across all instances with a
// Redis SET-NX lock. The lock carries an owner token so only the acquirer
// can release it; the TTL bounds the damage of a crashed holder.
type Coordinator struct {
	client  *redis.Client
	lockTTL time.Duration
	logger  arbor.ILogger
}

// NewCoordinator creates the sync coordinator
func NewCoordinator(client *redis.Client, config *common.SyncConfig, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		client:  client,
		lockTTL: common.ParseDurationOr(config.LockTTL, time.Hour),
		logger:  logger,
	}
}

// AcquireLock takes the global sync lock, returning an owner token.
// ErrLockHeld means a sync run is already in progress somewhere.
func (c *Coordinator) AcquireLock(ctx context.Context) (string, error) {
	owner := common.NewID()
	acquired, err := c.client.SetNX(ctx, lockKey, owner, c.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return "", ErrLockHeld
	}
	c.logger.Info().Str("owner", owner).Dur("ttl", c.lockTTL).Msg("Sync lock acquired")
	return owner, nil
}

// ReleaseLock releases the lock iff the owner token still matches.
// Releasing a lock that expired or was taken over is a no-op.
func (c *Coordinator) ReleaseLock(ctx context.Context, owner string) error {
	released, err := releaseScript.Run(ctx, c.client, []string{lockKey}, owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	if released == 0 {
		c.logger.Warn().Str("owner", owner).Msg("Sync lock was not owned at release")
		return nil
	}
	c.logger.Info().Str("owner", owner).Msg("Sync lock released")
	return nil
}

// IsLocked reports whether a sync run currently holds the lock
func (c *Coordinator) IsLocked(ctx context.Context) (bool, error) {
	n, err := c.client.Exists(ctx, lockKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkMaster publishes the syncing_master phase at the start of a run
func (c *Coordinator) MarkMaster(ctx context.Context, owner string) error {
	now := time.Now().UTC()
	return c.setStatus(ctx, &Status{
		State:     SyncMaster,
		Owner:     owner,
		StartedAt: &now,
	})
}

// MarkProcessing publishes per-supplier progress: supplier current of total
func (c *Coordinator) MarkProcessing(ctx context.Context, owner string, current, total int) error {
	status, _ := c.GetStatus(ctx)
	next := &Status{
		State:   SyncProcessing,
		Owner:   owner,
		Current: current,
		Total:   total,
	}
	if status != nil {
		next.StartedAt = status.StartedAt
	}
	return c.setStatus(ctx, next)
}

// MarkCompleted returns the status to idle with the outcome and stamps
// sync:last_run
func (c *Coordinator) MarkCompleted(ctx context.Context, owner string, suppliers int) error {
	status, _ := c.GetStatus(ctx)
	now := time.Now().UTC()
	next := &Status{
		State:      SyncIdle,
		Owner:      owner,
		FinishedAt: &now,
		Suppliers:  suppliers,
	}
	if status != nil {
		next.StartedAt = status.StartedAt
	}
	if err := c.setStatus(ctx, next); err != nil {
		return err
	}
	return c.client.Set(ctx, lastRunKey, now.Format(time.RFC3339), 0).Err()
}

// MarkFailed returns the status to idle carrying the failure cause
func (c *Coordinator) MarkFailed(ctx context.Context, owner string, cause error) error {
	status, _ := c.GetStatus(ctx)
	now := time.Now().UTC()
	next := &Status{
		State:      SyncIdle,
		Owner:      owner,
		FinishedAt: &now,
		Error:      cause.Error(),
	}
	if status != nil {
		next.StartedAt = status.StartedAt
	}
	return c.setStatus(ctx, next)
}

// GetStatus loads the published status, idle when none exists
func (c *Coordinator) GetStatus(ctx context.Context) (*Status, error) {
	data, err := c.client.Get(ctx, statusKey).Bytes()
	if err == redis.Nil {
		return &Status{State: SyncIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync status: %w", err)
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("corrupt sync status: %w", err)
	}
	return &status, nil
}

// LastRun returns the timestamp of the last completed sync, zero when never
func (c *Coordinator) LastRun(ctx context.Context) (time.Time, error) {
	value, err := c.client.Get(ctx, lastRunKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// RequestManualSync appends a manual trigger consumed by the scheduler
func (c *Coordinator) RequestManualSync(ctx context.Context) error {
	return c.client.RPush(ctx, triggerKey, time.Now().UTC().Format(time.RFC3339)).Err()
}

// PopManualTrigger consumes one pending manual trigger, false when none
func (c *Coordinator) PopManualTrigger(ctx context.Context) (bool, error) {
	_, err := c.client.LPop(ctx, triggerKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) setStatus(ctx context.Context, status *Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}
	return c.client.Set(ctx, statusKey, data, 0).Err()
}
