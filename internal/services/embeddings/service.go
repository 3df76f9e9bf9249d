package embeddings

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// Service produces supplier item embeddings and upserts them into the
// vector store. Calls to the embedding endpoint are rate limited so a
// large file does not saturate the self-hosted model.
type Service struct {
	llm        interfaces.LLMService
	store      interfaces.VectorStore
	limiter    *rate.Limiter
	dimension  int
	maxTextLen int
	modelName  string
	logger     arbor.ILogger
}

// NewService creates the embedding service
func NewService(llm interfaces.LLMService, store interfaces.VectorStore, config *common.Config, logger arbor.ILogger) *Service {
	interval := common.ParseDurationOr(config.Ollama.RateLimit, 0)
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Service{
		llm:        llm,
		store:      store,
		limiter:    limiter,
		dimension:  config.Ollama.Dimensions,
		maxTextLen: config.Extraction.MaxTextLength,
		modelName:  config.Ollama.EmbeddingModel,
		logger:     logger,
	}
}

var _ interfaces.EmbeddingService = (*Service)(nil)

// GenerateEmbedding embeds text, enforcing the rate limit and the
// configured dimension
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vector, err := s.llm.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}
	return vector, nil
}

// EmbedItem builds the item's text representation, embeds it and upserts
// the vector keyed by (supplier_item_id, model_name)
func (s *Service) EmbedItem(ctx context.Context, item *models.SupplierItem) error {
	text := s.TextRepresentation(item)
	vector, err := s.GenerateEmbedding(ctx, text)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, item.ID, s.modelName, vector); err != nil {
		return fmt.Errorf("failed to store embedding for item %s: %w", item.ID, err)
	}
	return nil
}

// TextRepresentation renders an item as the canonical embedding input:
// name | description | brand | category | "SKU: <sku>" | "key: value, ..."
// Empty fields are omitted; the result is truncated to the configured
// limit on a word boundary with a trailing ellipsis.
func (s *Service) TextRepresentation(item *models.SupplierItem) string {
	parts := []string{item.Name}

	if description := item.Characteristics.GetString("description"); description != "" {
		parts = append(parts, description)
	}
	if brand := item.Characteristics.GetString("brand"); brand != "" {
		parts = append(parts, brand)
	}
	if category := item.Characteristics.GetString("category_path"); category != "" {
		parts = append(parts, category)
	}
	if item.SupplierSKU != "" {
		parts = append(parts, "SKU: "+item.SupplierSKU)
	}
	if extras := extraCharacteristics(item.Characteristics); extras != "" {
		parts = append(parts, extras)
	}

	text := strings.Join(parts, " | ")
	return truncateWordBoundary(text, s.maxTextLen)
}

// Dimension returns the configured embedding dimension
func (s *Service) Dimension() int {
	return s.dimension
}

// ModelName returns the embedding model identifier
func (s *Service) ModelName() string {
	return s.modelName
}

// IsAvailable probes the embedding backend
func (s *Service) IsAvailable(ctx context.Context) bool {
	return s.llm.HealthCheck(ctx) == nil
}

// reservedKeys are characteristics already rendered as dedicated sections
var reservedKeys = map[string]bool{
	"description":   true,
	"brand":         true,
	"category_path": true,
	"category_id":   true,
}

// extraCharacteristics renders remaining attributes as "key: value" pairs
// in deterministic key order
func extraCharacteristics(characteristics models.Characteristics) string {
	if len(characteristics) == 0 {
		return ""
	}
	keys := make([]string, 0, len(characteristics))
	for key := range characteristics {
		if !reservedKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		value := characteristics[key]
		if value == nil {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s: %v", key, value))
	}
	return strings.Join(pairs, ", ")
}

// truncateWordBoundary cuts text to at most maxLen runes, backing up to the
// last space so no word is split, and appends "..."
func truncateWordBoundary(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	cut := maxLen
	for cut > 0 && runes[cut-1] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = maxLen
	}
	return strings.TrimSpace(string(runes[:cut])) + "..."
}
