package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/jobs"
	"github.com/ternarybob/supplyline/internal/models"
)

// AnalyzeHandler serves the async analysis API: file submissions, job
// status, job deletion and batch match triggers.
type AnalyzeHandler struct {
	registry interfaces.JobRegistry
	queue    interfaces.Queue
	items    interfaces.SupplierItemRepository
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewAnalyzeHandler creates the analyze API handler
func NewAnalyzeHandler(registry interfaces.JobRegistry, queue interfaces.Queue, items interfaces.SupplierItemRepository, logger arbor.ILogger) *AnalyzeHandler {
	return &AnalyzeHandler{
		registry: registry,
		queue:    queue,
		items:    items,
		validate: validator.New(),
		logger:   logger,
	}
}

// analyzeFileRequest is the POST /analyze/file body
type analyzeFileRequest struct {
	FileURL        string `json:"file_url" validate:"required"`
	SupplierID     string `json:"supplier_id" validate:"required,uuid4"`
	FileType       string `json:"file_type" validate:"required,oneof=pdf excel csv"`
	UseSemanticETL *bool  `json:"use_semantic_etl"`
	PrioritySheet  string `json:"priority_sheet"`
}

// mergeRequest is the POST /analyze/merge body, all fields optional
type mergeRequest struct {
	SupplierItemIDs []string `json:"supplier_item_ids" validate:"omitempty,dive,uuid4"`
	SupplierID      string   `json:"supplier_id" validate:"omitempty,uuid4"`
	Limit           int      `json:"limit" validate:"omitempty,gte=1,lte=1000"`
}

// AnalyzeFileHandler accepts a catalog file for extraction
// POST /analyze/file
func (h *AnalyzeHandler) AnalyzeFileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req analyzeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	job := models.NewJob(common.NewID(), models.JobKindFileAnalysis, req.SupplierID, req.FileURL)
	if err := h.registry.Create(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create analysis job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	// Semantic extraction is the default; callers opt out explicitly
	useSemanticETL := true
	if req.UseSemanticETL != nil {
		useSemanticETL = *req.UseSemanticETL
	}

	msg := &interfaces.QueueMessage{
		Type: "file_analysis",
		Payload: map[string]interface{}{
			"job_id":           job.ID,
			"file_url":         req.FileURL,
			"supplier_id":      req.SupplierID,
			"file_type":        req.FileType,
			"use_semantic_etl": useSemanticETL,
		},
	}
	if req.PrioritySheet != "" {
		msg.Payload["priority_sheet"] = req.PrioritySheet
	}
	if err := h.queue.Enqueue(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue analysis")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("supplier_id", req.SupplierID).
		Msg("Analysis job accepted")
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "analysis queued",
	})
}

// StatusRouteHandler dispatches GET and DELETE for /analyze/status/{job_id}
func (h *AnalyzeHandler) StatusRouteHandler(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/analyze/status/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !common.IsValidID(jobID) {
		writeError(w, http.StatusUnprocessableEntity, "malformed job id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getStatus(w, r, jobID)
	case http.MethodDelete:
		h.deleteJob(w, r, jobID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *AnalyzeHandler) getStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.registry.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *AnalyzeHandler) deleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	err := h.registry.Delete(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeHandler queues batch matching of unmatched supplier items
// POST /analyze/merge
func (h *AnalyzeHandler) MergeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req := mergeRequest{Limit: 100}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := h.validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if req.Limit <= 0 {
			req.Limit = 100
		}
	}

	// An explicit item list bypasses the unmatched scan entirely
	queued := len(req.SupplierItemIDs)
	if queued == 0 {
		unmatched, err := h.items.ListUnmatched(r.Context(), req.Limit)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to count unmatched items")
			writeError(w, http.StatusInternalServerError, "failed to inspect unmatched items")
			return
		}
		queued = len(unmatched)
	}

	job := models.NewJob(common.NewID(), models.JobKindBatchMatch, req.SupplierID, "")
	job.ItemsTotal = queued
	if err := h.registry.Create(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create merge job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	msg := &interfaces.QueueMessage{
		Type: "batch_match",
		Payload: map[string]interface{}{
			"job_id": job.ID,
			"limit":  float64(req.Limit),
		},
	}
	if len(req.SupplierItemIDs) > 0 {
		ids := make([]interface{}, len(req.SupplierItemIDs))
		for i, id := range req.SupplierItemIDs {
			ids[i] = id
		}
		msg.Payload["supplier_item_ids"] = ids
	}
	if req.SupplierID != "" {
		msg.Payload["supplier_id"] = req.SupplierID
	}
	if err := h.queue.Enqueue(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue batch match")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		ItemsQueued: queued,
	})
}
