package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc, dims int) (*OllamaService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	service, err := NewOllamaService(&common.OllamaConfig{
		BaseURL:        server.URL,
		LLMModel:       "qwen2.5:14b",
		EmbeddingModel: "nomic-embed-text",
		Dimensions:     dims,
		Timeout:        "5s",
	}, arbor.NewLogger())
	require.NoError(t, err)
	// No backoff waits in tests
	service.retry = &RetryConfig{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 1, BackoffMultiplier: 1}
	return service, server
}

func TestOllamaGenerateContent(t *testing.T) {
	service, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:14b", req.Model)
		assert.False(t, req.Stream)
		// System instruction is prepended as the first message
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": `[{"name": "Widget"}]`},
			"done":    true,
		})
	}, 768)

	resp, err := service.GenerateContent(context.Background(), &interfaces.ContentRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: "extract products"}},
		SystemInstruction: "You extract product rows.",
		OutputSchema:      map[string]interface{}{"type": "array"},
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"name": "Widget"}]`, resp.Text)
	assert.Equal(t, "ollama", resp.Provider)
}

func TestOllamaGenerateContentEmptyMessages(t *testing.T) {
	service, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called")
	}, 768)

	_, err := service.GenerateContent(context.Background(), &interfaces.ContentRequest{})
	assert.Error(t, err)
}

func TestOllamaEmbed(t *testing.T) {
	vector := make([]float32, 4)
	for i := range vector {
		vector[i] = float32(i) * 0.25
	}

	service, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vector})
	}, 4)

	got, err := service.Embed(context.Background(), "Втулка переходная 20мм")
	require.NoError(t, err)
	assert.Equal(t, vector, got)
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	service, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{1, 2, 3}})
	}, 768)

	_, err := service.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestOllamaRetriesTransientFailures(t *testing.T) {
	calls := 0
	service, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "ok"},
			"done":    true,
		})
	}, 768)

	resp, err := service.GenerateContent(context.Background(), &interfaces.ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, calls)
}
