package llm

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
	"github.com/ternarybob/supplyline/internal/interfaces"
)

// OllamaService implements the LLMService interface against a self-hosted
// Ollama endpoint. It provides chat completions via /api/chat and embeddings
// via /api/embeddings.
type OllamaService struct {
	config  *common.OllamaConfig
	logger  arbor.ILogger
	client  *http.Client
	retry   *RetryConfig
	baseURL string
}

// NewOllamaService creates a new Ollama LLM service instance.
func NewOllamaService(ollamaConfig *common.OllamaConfig, logger arbor.ILogger) (*OllamaService, error) {
	if ollamaConfig.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is required (set OLLAMA_BASE_URL or ollama.base_url in config)")
	}

	timeout := common.ParseDurationOr(ollamaConfig.Timeout, 120*time.Second)

	service := &OllamaService{
		config:  ollamaConfig,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		retry:   NewDefaultRetryConfig(),
		baseURL: strings.TrimRight(ollamaConfig.BaseURL, "/"),
	}

	logger.Debug().
		Str("base_url", service.baseURL).
		Str("llm_model", ollamaConfig.LLMModel).
		Str("embedding_model", ollamaConfig.EmbeddingModel).
		Dur("timeout", timeout).
		Msg("Ollama LLM service initialized")

	return service, nil
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []interfaces.Message   `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   json.RawMessage        `json:"format,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// GenerateContent generates a completion for the request.
// When OutputSchema is set the schema is passed as the Ollama format field,
// which constrains decoding to schema-valid JSON.
func (s *OllamaService) GenerateContent(ctx context.Context, request *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	if request == nil || len(request.Messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty for content generation")
	}

	messages := request.Messages
	if request.SystemInstruction != "" {
		messages = append([]interfaces.Message{{Role: "system", Content: request.SystemInstruction}}, messages...)
	}

	body := ollamaChatRequest{
		Model:    s.config.LLMModel,
		Messages: messages,
		Stream:   false,
	}
	if request.Temperature > 0 {
		body.Options = map[string]interface{}{"temperature": request.Temperature}
	}
	if request.OutputSchema != nil {
		schema, err := json.Marshal(request.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output schema: %w", err)
		}
		body.Format = schema
	}

	startTime := time.Now()

	var response ollamaChatResponse
	err := WithRetry(ctx, s.retry, func() error {
		return s.post(ctx, "/api/chat", body, &response)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("model", s.config.LLMModel).
			Msg("Ollama chat completion failed")
		return nil, fmt.Errorf("ollama chat completion failed: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("ollama returned error: %s", response.Error)
	}
	if strings.TrimSpace(response.Message.Content) == "" {
		return nil, fmt.Errorf("ollama returned empty response")
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response.Message.Content)).
		Dur("duration", time.Since(startTime)).
		Msg("Ollama chat completion succeeded")

	return &interfaces.ContentResponse{
		Text:     response.Message.Content,
		Provider: "ollama",
		Model:    s.config.LLMModel,
	}, nil
}

// Embed generates an embedding vector for text and validates its dimension
// against the configured value.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding")
	}

	body := ollamaEmbeddingRequest{
		Model:  s.config.EmbeddingModel,
		Prompt: text,
	}

	var response ollamaEmbeddingResponse
	err := WithRetry(ctx, s.retry, func() error {
		return s.post(ctx, "/api/embeddings", body, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("ollama returned error: %s", response.Error)
	}
	if len(response.Embedding) != s.config.Dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d (model %s)",
			s.config.Dimensions, len(response.Embedding), s.config.EmbeddingModel)
	}

	return response.Embedding, nil
}

// HealthCheck probes the Ollama endpoint's version route.
func (s *OllamaService) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, s.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}

// ModelName returns the chat model identifier
func (s *OllamaService) ModelName() string {
	return s.config.LLMModel
}

// EmbeddingModelName returns the embedding model identifier
func (s *OllamaService) EmbeddingModelName() string {
	return s.config.EmbeddingModel
}

// Close releases resources. The HTTP client needs no explicit cleanup.
func (s *OllamaService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// post sends a JSON request and decodes the JSON response
func (s *OllamaService) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, truncateForLog(string(data), 256))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
