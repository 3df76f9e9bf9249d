package etl

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
	"github.com/ternarybob/supplyline/internal/services/llm"
)

const maxProductNameLength = 500

// extractionSystemPrompt instructs the model to emit typed product rows.
// Supplier files mix Russian and English headers, so the prompt names both.
const extractionSystemPrompt = `You extract product records from supplier price list tables rendered as markdown.
For every product row, emit one JSON object with these fields:
  name (string, required), description (string), brand (string), unit (string),
  sku (string), price_rrc (number or string, required retail price),
  price_opt (number or string, optional wholesale price),
  category_path (string like "Parent / Child" taken from section headers),
  in_stock (boolean if the table indicates availability).
Russian headers map the obvious way: Название/Наименование -> name, Цена -> price_rrc,
Опт -> price_opt, Артикул -> sku, Категория -> category_path, Наличие -> in_stock.
Skip header rows, section dividers and rows without a product name.
Respond with a JSON array only.`

// Extractor turns markdown chunks into typed products via the LLM
type Extractor struct {
	llmService  interfaces.LLMService
	temperature float32
	logger      arbor.ILogger
}

// NewExtractor creates an LLM-backed product extractor
func NewExtractor(llmService interfaces.LLMService, temperature float32, logger arbor.ILogger) *Extractor {
	if temperature <= 0 {
		temperature = 0.2
	}
	return &Extractor{
		llmService:  llmService,
		temperature: temperature,
		logger:      logger,
	}
}

// extractionSchema constrains structured-output providers to an array of
// product objects
var extractionSchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":          map[string]interface{}{"type": "string"},
			"description":   map[string]interface{}{"type": "string"},
			"brand":         map[string]interface{}{"type": "string"},
			"unit":          map[string]interface{}{"type": "string"},
			"sku":           map[string]interface{}{"type": "string"},
			"price_rrc":     map[string]interface{}{"type": []string{"number", "string"}},
			"price_opt":     map[string]interface{}{"type": []string{"number", "string"}},
			"category_path": map[string]interface{}{"type": "string"},
			"in_stock":      map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"name", "price_rrc"},
	},
}

// ExtractChunk runs the LLM over one markdown chunk and validates each
// returned record. Row-level failures are collected, not fatal: a bad row
// costs one product, never the chunk.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk models.MarkdownChunk) ([]models.ExtractedProduct, []models.ExtractionError, error) {
	resp, err := e.llmService.GenerateContent(ctx, &interfaces.ContentRequest{
		Messages: []interfaces.Message{
			{Role: "user", Content: chunk.Markdown},
		},
		SystemInstruction: extractionSystemPrompt,
		Temperature:       e.temperature,
		OutputSchema:      extractionSchema,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("extraction failed for chunk %d: %w", chunk.ChunkID, err)
	}

	objects, err := llm.DecodeObjects(resp.Text)
	if err != nil {
		return nil, nil, fmt.Errorf("unparseable extraction response for chunk %d: %w", chunk.ChunkID, err)
	}

	products := make([]models.ExtractedProduct, 0, len(objects))
	var errors []models.ExtractionError
	for _, obj := range objects {
		product, err := e.buildProduct(obj)
		if err != nil {
			errors = append(errors, models.ExtractionError{
				ChunkID: chunk.ChunkID,
				Type:    string(models.ErrorValidation),
				Message: err.Error(),
				RawData: obj,
			})
			continue
		}
		products = append(products, *product)
	}

	e.logger.Debug().
		Int("chunk_id", chunk.ChunkID).
		Int("products", len(products)).
		Int("row_errors", len(errors)).
		Msg("Chunk extraction complete")

	return products, errors, nil
}

// buildProduct validates and converts one raw record
func (e *Extractor) buildProduct(obj map[string]interface{}) (*models.ExtractedProduct, error) {
	canonical := llm.CanonicalizeKeys(obj)

	name, _ := canonical["name"].(string)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if runes := []rune(name); len(runes) > maxProductNameLength {
		return nil, fmt.Errorf("product name exceeds %d characters", maxProductNameLength)
	}

	// Zero is a legal retail price (price-on-request rows)
	price, err := ParsePriceValue(canonical["price_rrc"])
	if err != nil {
		return nil, fmt.Errorf("invalid price for %q: %w", name, err)
	}

	product := &models.ExtractedProduct{
		Name:     name,
		PriceRRC: price,
		RawData:  obj,
	}

	if description, ok := canonical["description"].(string); ok {
		product.Description = strings.TrimSpace(description)
	}
	if brand, ok := canonical["brand"].(string); ok {
		product.Brand = strings.TrimSpace(brand)
	}
	if unit, ok := canonical["unit"].(string); ok {
		product.Unit = strings.TrimSpace(unit)
	}
	if sku, ok := canonical["sku"].(string); ok {
		product.SKU = strings.TrimSpace(sku)
	}
	if opt, exists := canonical["price_opt"]; exists && opt != nil {
		if optPrice, err := ParsePriceValue(opt); err == nil && !optPrice.IsZero() {
			product.PriceOpt = &optPrice
		}
	}
	if path, ok := canonical["category_path"].(string); ok {
		product.CategoryPath = SplitCategoryPath(path)
	}
	if inStock, exists := canonical["in_stock"]; exists && inStock != nil {
		val := models.Characteristics{"in_stock": inStock}.GetBoolTolerant("in_stock")
		product.InStock = &val
	}

	return product, nil
}

// SplitCategoryPath splits "Parent / Child" or "Parent > Child" into
// trimmed segments, dropping empties
func SplitCategoryPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	sep := "/"
	if strings.Contains(path, ">") && !strings.Contains(path, "/") {
		sep = ">"
	}
	parts := strings.Split(path, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
