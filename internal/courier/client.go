package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/models"
)

// ETLClient calls the analyze endpoints of the extraction service.
// Each call carries its own timeout: health checks and status polls are
// short, the trigger allows for upload handling on the far side.
type ETLClient struct {
	baseURL        string
	httpClient     *http.Client
	healthTimeout  time.Duration
	triggerTimeout time.Duration
	statusTimeout  time.Duration
	logger         arbor.ILogger
}

// NewETLClient creates a client for the analyze API
func NewETLClient(config *common.CourierConfig, logger arbor.ILogger) *ETLClient {
	return &ETLClient{
		baseURL:        strings.TrimRight(config.ETLBaseURL, "/"),
		httpClient:     &http.Client{},
		healthTimeout:  common.ParseDurationOr(config.HealthTimeout, 5*time.Second),
		triggerTimeout: common.ParseDurationOr(config.TriggerTimeout, 30*time.Second),
		statusTimeout:  common.ParseDurationOr(config.StatusTimeout, 5*time.Second),
		logger:         logger,
	}
}

// triggerRequest is the POST /analyze/file body
type triggerRequest struct {
	FileURL    string `json:"file_url"`
	SupplierID string `json:"supplier_id"`
}

// triggerResponse is the 202 body from POST /analyze/file
type triggerResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health verifies the extraction service is reachable
func (c *ETLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extraction service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extraction service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Trigger starts an analysis run and returns the remote job id
func (c *ETLClient) Trigger(ctx context.Context, supplierID, filePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.triggerTimeout)
	defer cancel()

	body, err := json.Marshal(triggerRequest{FileURL: filePath, SupplierID: supplierID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/file", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis trigger failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("analysis trigger rejected with status %d: %s", resp.StatusCode, payload)
	}

	var accepted triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", fmt.Errorf("failed to decode trigger response: %w", err)
	}
	if accepted.JobID == "" {
		return "", fmt.Errorf("trigger response carried no job id")
	}
	return accepted.JobID, nil
}

// Status fetches the remote job document
func (c *ETLClient) Status(ctx context.Context, jobID string) (*models.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analyze/status/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("job %s unknown to extraction service", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status poll returned %d", resp.StatusCode)
	}

	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}
	return &job, nil
}
