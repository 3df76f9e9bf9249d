package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports service liveness and dependency health
type HealthHandler struct {
	checks map[string]HealthCheck
	logger arbor.ILogger
}

// NewHealthHandler creates the health endpoint handler. Checks are named
// probes (ollama, database, redis); a nil check is reported as "skipped".
func NewHealthHandler(checks map[string]HealthCheck, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// HealthHandler serves GET /health. Degraded dependencies do not fail
// the endpoint; the per-check results carry the detail.
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := healthResponse{
		Status:  "ok",
		Version: common.Version,
		Service: "supplyline",
		Checks:  make(map[string]string, len(h.checks)),
	}

	for name, check := range h.checks {
		if check == nil {
			response.Checks[name] = "skipped"
			continue
		}
		if err := check(ctx); err != nil {
			response.Checks[name] = err.Error()
			response.Status = "degraded"
			h.logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
			continue
		}
		response.Checks[name] = "ok"
	}

	writeJSON(w, http.StatusOK, response)
}
