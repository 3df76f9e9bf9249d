package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
	"github.com/ternarybob/supplyline/internal/services/llm"
)

const rerankSystemPrompt = `You judge whether a supplier catalog item is the same product as one of the candidate catalog entries.
Consider brand, model numbers, dimensions and units; ignore word order, casing and minor spelling differences.
Respond with JSON: {"product_id": "<id of the best candidate or empty string>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}.
Confidence 1.0 means certainly the same product, 0.0 means certainly different.`

// Reranker asks the LLM to judge fuzzy candidates for one supplier item.
// It refines, never replaces, the fuzzy stage: callers fall back to the
// fuzzy decision when the rerank call fails.
type Reranker struct {
	llmService interfaces.LLMService
	logger     arbor.ILogger
}

// NewReranker creates an LLM match reranker
func NewReranker(llmService interfaces.LLMService, logger arbor.ILogger) *Reranker {
	return &Reranker{llmService: llmService, logger: logger}
}

type rerankVerdict struct {
	ProductID  string  `json:"product_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Rerank returns the LLM's best candidate with its confidence.
// When the model picks no candidate the best fuzzy candidate is returned
// with zero confidence, which downstream thresholds treat as unmatched.
func (r *Reranker) Rerank(ctx context.Context, item *models.SupplierItem, candidates []models.MatchCandidate) (*models.MatchCandidate, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to rerank")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Supplier item: %q", item.Name)
	if brand := item.Characteristics.GetString("brand"); brand != "" {
		fmt.Fprintf(&sb, " (brand: %s)", brand)
	}
	sb.WriteString("\n\nCandidates:\n")
	for _, candidate := range candidates {
		fmt.Fprintf(&sb, "- id=%s name=%q fuzzy_score=%.0f\n", candidate.ProductID, candidate.Name, candidate.Score)
	}

	resp, err := r.llmService.GenerateContent(ctx, &interfaces.ContentRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: sb.String()}},
		SystemInstruction: rerankSystemPrompt,
		OutputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"product_id": map[string]interface{}{"type": "string"},
				"confidence": map[string]interface{}{"type": "number"},
				"reasoning":  map[string]interface{}{"type": "string"},
			},
			"required": []string{"product_id", "confidence"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rerank call failed: %w", err)
	}

	doc, err := llm.ExtractJSON(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("unparseable rerank response: %w", err)
	}
	var verdict rerankVerdict
	if err := json.Unmarshal([]byte(doc), &verdict); err != nil {
		return nil, fmt.Errorf("invalid rerank verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("rerank confidence %.2f out of range", verdict.Confidence)
	}

	for i := range candidates {
		if candidates[i].ProductID == verdict.ProductID {
			reranked := candidates[i]
			reranked.Confidence = verdict.Confidence
			reranked.Reasoning = verdict.Reasoning
			return &reranked, nil
		}
	}

	// Model rejected every candidate
	rejected := candidates[0]
	rejected.Confidence = 0
	rejected.Reasoning = verdict.Reasoning
	return &rejected, nil
}
