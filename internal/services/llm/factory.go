package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
)

// NewLLMService creates the configured LLM provider.
// Ollama is the default; Claude is opt-in and requires an API key.
// Embeddings always come from the Ollama endpoint, so when Claude is
// selected for generation the caller still needs an OllamaService for
// the embedding path.
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	provider := config.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderOllama
	}

	switch provider {
	case common.LLMProviderOllama:
		return NewOllamaService(&config.Ollama, logger)
	case common.LLMProviderClaude:
		return NewClaudeService(&config.Claude, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (expected \"ollama\" or \"claude\")", provider)
	}
}
