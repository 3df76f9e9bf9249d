package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

const (
	parseTriggersKey = "parse:triggers"
	retryTriggersKey = "retry:triggers"
)

// TriggerPoller drains the external trigger lists. Other systems push
// plain values onto these Redis lists to request work: a supplier id on
// parse:triggers requests matching of that supplier's items, a failed
// job id on retry:triggers requests a fresh analysis run of its file.
type TriggerPoller struct {
	client   *redis.Client
	registry interfaces.JobRegistry
	queue    interfaces.Queue
	logger   arbor.ILogger
}

// NewTriggerPoller creates the trigger list poller
func NewTriggerPoller(client *redis.Client, registry interfaces.JobRegistry, queue interfaces.Queue, logger arbor.ILogger) *TriggerPoller {
	return &TriggerPoller{
		client:   client,
		registry: registry,
		queue:    queue,
		logger:   logger,
	}
}

// PollParseTriggers drains parse:triggers, queueing a batch match per entry
func (p *TriggerPoller) PollParseTriggers(ctx context.Context) error {
	for {
		supplierID, err := p.client.LPop(ctx, parseTriggersKey).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pop parse trigger: %w", err)
		}

		msg := &interfaces.QueueMessage{Type: "batch_match", Payload: map[string]interface{}{}}
		if supplierID != "" {
			msg.Payload["supplier_id"] = supplierID
		}
		if err := p.queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("failed to enqueue parse trigger: %w", err)
		}
		p.logger.Info().Str("supplier_id", supplierID).Msg("Parse trigger queued")
	}
}

// PollRetryTriggers drains retry:triggers. Each entry names a failed job
// whose file should be analyzed again; terminal jobs are never re-entered,
// so the retry runs as a fresh job over the same file.
func (p *TriggerPoller) PollRetryTriggers(ctx context.Context) error {
	for {
		jobID, err := p.client.LPop(ctx, retryTriggersKey).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pop retry trigger: %w", err)
		}

		previous, err := p.registry.Get(ctx, jobID)
		if err != nil {
			p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Retry trigger for unknown job, dropping")
			continue
		}
		if previous.Status != models.JobStatusFailed {
			p.logger.Warn().Str("job_id", jobID).Str("status", string(previous.Status)).
				Msg("Retry trigger for non-failed job, dropping")
			continue
		}

		retry := models.NewJob(common.NewID(), previous.Kind, previous.SupplierID, previous.FileURL)
		retry.Metadata["retried_from"] = previous.ID
		if err := p.registry.Create(ctx, retry); err != nil {
			return fmt.Errorf("failed to create retry job: %w", err)
		}
		if err := p.queue.Enqueue(ctx, &interfaces.QueueMessage{
			Type: "file_analysis",
			Payload: map[string]interface{}{
				"job_id":      retry.ID,
				"file_url":    retry.FileURL,
				"supplier_id": retry.SupplierID,
			},
		}); err != nil {
			return fmt.Errorf("failed to enqueue retry: %w", err)
		}

		p.logger.Info().
			Str("job_id", retry.ID).
			Str("retried_from", previous.ID).
			Msg("Failed job requeued for analysis")
	}
}
