package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) GenerateContent(ctx context.Context, request *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.ContentResponse{Text: s.response, Provider: "stub", Model: "stub"}, nil
}
func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (s *stubLLM) HealthCheck(ctx context.Context) error                     { return nil }
func (s *stubLLM) ModelName() string                                         { return "stub" }
func (s *stubLLM) EmbeddingModelName() string                                { return "stub" }
func (s *stubLLM) Close() error                                              { return nil }

func rerankedCandidates() []models.MatchCandidate {
	return []models.MatchCandidate{
		{ProductID: "p1", Name: "Болт М8х40", Score: 88},
		{ProductID: "p2", Name: "Болт М8х60", Score: 82},
	}
}

func TestRerankPicksCandidate(t *testing.T) {
	r := NewReranker(&stubLLM{response: `{"product_id": "p2", "confidence": 0.93, "reasoning": "Same bolt, length matches"}`}, arbor.NewLogger())

	best, err := r.Rerank(context.Background(), &models.SupplierItem{ID: "i1", Name: "Болт 60мм М8"}, rerankedCandidates())
	require.NoError(t, err)

	assert.Equal(t, "p2", best.ProductID)
	assert.Equal(t, 0.93, best.Confidence)
	assert.Equal(t, 82.0, best.Score) // Fuzzy score preserved
	assert.NotEmpty(t, best.Reasoning)
}

func TestRerankRejectsAllCandidates(t *testing.T) {
	r := NewReranker(&stubLLM{response: `{"product_id": "", "confidence": 0.1, "reasoning": "None match"}`}, arbor.NewLogger())

	best, err := r.Rerank(context.Background(), &models.SupplierItem{ID: "i1", Name: "Гайка М10"}, rerankedCandidates())
	require.NoError(t, err)
	assert.Equal(t, 0.0, best.Confidence)
}

func TestRerankFencedResponse(t *testing.T) {
	r := NewReranker(&stubLLM{response: "```json\n{\"product_id\": \"p1\", \"confidence\": 0.75}\n```"}, arbor.NewLogger())

	best, err := r.Rerank(context.Background(), &models.SupplierItem{ID: "i1", Name: "Болт"}, rerankedCandidates())
	require.NoError(t, err)
	assert.Equal(t, "p1", best.ProductID)
	assert.Equal(t, 0.75, best.Confidence)
}

func TestRerankErrorsPropagate(t *testing.T) {
	r := NewReranker(&stubLLM{err: errors.New("503 unavailable")}, arbor.NewLogger())
	_, err := r.Rerank(context.Background(), &models.SupplierItem{ID: "i1", Name: "Болт"}, rerankedCandidates())
	assert.Error(t, err)
}

func TestRerankConfidenceOutOfRange(t *testing.T) {
	r := NewReranker(&stubLLM{response: `{"product_id": "p1", "confidence": 1.7}`}, arbor.NewLogger())
	_, err := r.Rerank(context.Background(), &models.SupplierItem{ID: "i1", Name: "Болт"}, rerankedCandidates())
	assert.Error(t, err)
}

func TestRerankNoCandidates(t *testing.T) {
	r := NewReranker(&stubLLM{}, arbor.NewLogger())
	_, err := r.Rerank(context.Background(), &models.SupplierItem{ID: "i1", Name: "Болт"}, nil)
	assert.Error(t, err)
}
