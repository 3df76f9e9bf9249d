package interfaces

import "context"

// Message is a provider-agnostic chat message
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// ContentRequest is a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []Message
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	// OutputSchema, when set, asks the provider for structured JSON output.
	// Providers that cannot enforce a schema still return text; callers must
	// run the raw-JSON fallback parser over the response.
	OutputSchema map[string]interface{}
}

// ContentResponse is a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider string
	Model    string
}

// LLMService generates content and embeddings
type LLMService interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	HealthCheck(ctx context.Context) error
	ModelName() string
	EmbeddingModelName() string
	Close() error
}
