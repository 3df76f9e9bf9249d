package workers

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/courier"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
	"github.com/ternarybob/supplyline/internal/queue"
	"github.com/ternarybob/supplyline/internal/services/etl"
	"github.com/ternarybob/supplyline/internal/services/matching"
)

// Handlers binds queue message types to the pipeline services
type Handlers struct {
	registry     interfaces.JobRegistry
	orchestrator *etl.Orchestrator
	matcher      *matching.Matcher
	items        interfaces.SupplierItemRepository
	resolver     *courier.FileResolver
	batchSize    int
	logger       arbor.ILogger
}

// NewHandlers creates the worker handler set
func NewHandlers(
	registry interfaces.JobRegistry,
	orchestrator *etl.Orchestrator,
	matcher *matching.Matcher,
	items interfaces.SupplierItemRepository,
	resolver *courier.FileResolver,
	batchSize int,
	logger arbor.ILogger,
) *Handlers {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Handlers{
		registry:     registry,
		orchestrator: orchestrator,
		matcher:      matcher,
		items:        items,
		resolver:     resolver,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Register wires the handlers into the worker pool
func (h *Handlers) Register(pool *queue.WorkerPool) {
	pool.RegisterHandler("file_analysis", h.FileAnalysis)
	pool.RegisterHandler("batch_match", h.BatchMatch)
}

// FileAnalysis runs the extraction pipeline for one submitted file.
// Redeliveries of a job that already reached a terminal state are
// acknowledged without reprocessing.
func (h *Handlers) FileAnalysis(ctx context.Context, msg *interfaces.QueueMessage) error {
	jobID, _ := msg.Payload["job_id"].(string)
	if jobID == "" {
		return fmt.Errorf("file_analysis message %s carries no job_id", msg.ID)
	}

	job, err := h.registry.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		h.logger.Warn().Str("job_id", jobID).Msg("Job already terminal, dropping redelivery")
		return nil
	}

	path, _, err := h.resolver.Resolve(ctx, job.FileURL)
	if err != nil {
		h.registry.AppendError(ctx, jobID, err.Error())
		if msg.Tries+1 >= msg.MaxTries {
			// Last attempt: the job must not linger as processing
			h.registry.MarkCompleted(ctx, jobID, models.JobStatusFailed, nil)
		}
		return fmt.Errorf("failed to resolve file for job %s: %w", jobID, err)
	}

	opts := etl.DefaultRunOptions()
	if fileType, ok := msg.Payload["file_type"].(string); ok {
		opts.FileType = fileType
	}
	if prioritySheet, ok := msg.Payload["priority_sheet"].(string); ok {
		opts.PrioritySheet = prioritySheet
	}
	if useSemanticETL, ok := msg.Payload["use_semantic_etl"].(bool); ok {
		opts.UseSemanticETL = useSemanticETL
	}

	// The orchestrator records its own failures on the job, so an error
	// here is already terminal; retrying would re-run a finished job.
	if err := h.orchestrator.Run(ctx, job, path, opts); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Analysis failed")
	}
	return nil
}

// BatchMatch scores a batch of unmatched supplier items against the
// canonical catalog.
func (h *Handlers) BatchMatch(ctx context.Context, msg *interfaces.QueueMessage) error {
	limit := h.batchSize
	if v, ok := msg.Payload["limit"].(float64); ok && int(v) > 0 {
		limit = int(v)
	}

	var items []*models.SupplierItem
	var err error
	if ids, ok := msg.Payload["supplier_item_ids"].([]interface{}); ok && len(ids) > 0 {
		items, err = h.itemsByID(ctx, ids)
	} else if supplierID, ok := msg.Payload["supplier_id"].(string); ok && supplierID != "" {
		items, err = h.unmatchedForSupplier(ctx, supplierID, limit)
	} else {
		items, err = h.items.ListUnmatched(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to load items for matching: %w", err)
	}

	stats, err := h.matcher.MatchBatch(ctx, items)
	if err != nil {
		return fmt.Errorf("batch match failed: %w", err)
	}

	h.logger.Info().
		Int("processed", stats.Processed).
		Int("auto_matched", stats.AutoMatched).
		Int("review", stats.Review).
		Int("unmatched", stats.Unmatched).
		Msg("Batch match finished")

	if jobID, ok := msg.Payload["job_id"].(string); ok && jobID != "" {
		h.finalizeMergeJob(ctx, jobID, stats)
	}
	return nil
}

// itemsByID loads an explicit item set; ids that no longer resolve are
// skipped rather than failing the batch
func (h *Handlers) itemsByID(ctx context.Context, ids []interface{}) ([]*models.SupplierItem, error) {
	items := make([]*models.SupplierItem, 0, len(ids))
	for _, raw := range ids {
		id, ok := raw.(string)
		if !ok || id == "" {
			continue
		}
		item, err := h.items.GetByID(ctx, id)
		if err != nil {
			h.logger.Warn().Err(err).Str("item_id", id).Msg("Requested item missing, skipping")
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (h *Handlers) unmatchedForSupplier(ctx context.Context, supplierID string, limit int) ([]*models.SupplierItem, error) {
	all, err := h.items.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	var unmatched []*models.SupplierItem
	for _, item := range all {
		if item.MatchStatus == models.MatchUnmatched {
			unmatched = append(unmatched, item)
			if len(unmatched) >= limit {
				break
			}
		}
	}
	return unmatched, nil
}

// finalizeMergeJob closes the job created by the merge endpoint
func (h *Handlers) finalizeMergeJob(ctx context.Context, jobID string, stats models.BatchMatchStats) {
	job, err := h.registry.Get(ctx, jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Merge job missing at finalization")
		return
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]interface{})
	}
	job.Metadata["auto_matched"] = stats.AutoMatched
	job.Metadata["review"] = stats.Review
	job.Metadata["unmatched"] = stats.Unmatched
	job.Metadata["skipped"] = stats.Skipped
	job.ItemsProcessed = stats.Processed
	if err := h.registry.Update(ctx, job); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to store match stats")
	}
	if err := h.registry.MarkCompleted(ctx, jobID, models.JobStatusCompleted, nil); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to finalize merge job")
	}
}
