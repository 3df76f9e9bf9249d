package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// Matcher links supplier items to canonical products.
// Fuzzy scores decide the outcome: at or above the auto threshold the item
// links directly, between the thresholds it enters the review queue, below
// it stays unmatched. Verified matches are never re-scored.
// When the reranker is enabled, its confidence replaces the fuzzy decision
// and the fuzzy result serves as fallback on rerank failure.
type Matcher struct {
	products interfaces.ProductRepository
	items    interfaces.SupplierItemRepository
	review   interfaces.ReviewRepository
	embedder interfaces.EmbeddingService
	vectors  interfaces.VectorStore
	reranker *Reranker
	config   *common.MatchingConfig
	logger   arbor.ILogger
}

// NewMatcher creates the product matcher. embedder, vectors and reranker
// may each be nil; vector recall needs both embedder and vectors.
func NewMatcher(
	products interfaces.ProductRepository,
	items interfaces.SupplierItemRepository,
	review interfaces.ReviewRepository,
	embedder interfaces.EmbeddingService,
	vectors interfaces.VectorStore,
	reranker *Reranker,
	config *common.MatchingConfig,
	logger arbor.ILogger,
) *Matcher {
	return &Matcher{
		products: products,
		items:    items,
		review:   review,
		embedder: embedder,
		vectors:  vectors,
		reranker: reranker,
		config:   config,
		logger:   logger,
	}
}

// MatchBatch scores a batch of supplier items against the active product
// catalog, loaded once per batch. Item-level failures are logged and
// counted, never fatal to the batch.
func (m *Matcher) MatchBatch(ctx context.Context, items []*models.SupplierItem) (models.BatchMatchStats, error) {
	stats := models.BatchMatchStats{}
	if len(items) == 0 {
		return stats, nil
	}

	names, err := m.products.ListActiveNames(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load product names: %w", err)
	}

	for _, item := range items {
		result, err := m.MatchItem(ctx, item, names)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			m.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Item matching failed")
			continue
		}
		stats.Processed++
		switch result.Status {
		case models.MatchAuto:
			stats.AutoMatched++
		case models.MatchPotential:
			stats.Review++
		case models.MatchUnmatched:
			stats.Unmatched++
		case models.MatchVerified:
			stats.Skipped++
		}
	}

	m.logger.Info().
		Int("processed", stats.Processed).
		Int("auto_matched", stats.AutoMatched).
		Int("review", stats.Review).
		Int("unmatched", stats.Unmatched).
		Int("skipped", stats.Skipped).
		Msg("Batch matching complete")
	return stats, nil
}

// MatchItem scores one supplier item and persists the outcome
func (m *Matcher) MatchItem(ctx context.Context, item *models.SupplierItem, names []models.ProductName) (*models.MatchResult, error) {
	// Human-verified links are permanent until a human changes them
	if item.MatchStatus == models.MatchVerified {
		return &models.MatchResult{
			SupplierItemID: item.ID,
			Status:         models.MatchVerified,
		}, nil
	}

	candidates := m.scoreCandidates(item.Name, names)
	if recalled := m.vectorCandidates(ctx, item, names); len(recalled) > 0 {
		candidates = mergeCandidateSets(candidates, recalled, m.config.MaxCandidates)
	}
	result := &models.MatchResult{
		SupplierItemID: item.ID,
		Candidates:     candidates,
	}

	if len(candidates) == 0 {
		result.Status = models.MatchUnmatched
		return result, m.persist(ctx, item, result)
	}

	best := candidates[0]
	result.BestMatch = &best
	result.Score = &best.Score

	status := m.decideByScore(best.Score)
	if m.reranker != nil && m.config.UseLLMRerank {
		if reranked, err := m.reranker.Rerank(ctx, item, candidates); err != nil {
			m.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Rerank failed, keeping fuzzy decision")
		} else {
			status = m.decideByConfidence(reranked.Confidence)
			result.BestMatch = reranked
			result.Candidates = mergeReranked(candidates, reranked)
		}
	}

	result.Status = status
	return result, m.persist(ctx, item, result)
}

// scoreCandidates returns the top candidates by fuzzy score, capped at
// the configured maximum
func (m *Matcher) scoreCandidates(itemName string, names []models.ProductName) []models.MatchCandidate {
	candidates := make([]models.MatchCandidate, 0, len(names))
	for _, name := range names {
		score := TokenSetRatio(itemName, name.Name)
		if score < m.config.PotentialThreshold {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			ProductID: name.ID,
			Name:      name.Name,
			Score:     score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > m.config.MaxCandidates {
		candidates = candidates[:m.config.MaxCandidates]
	}
	return candidates
}

// vectorCandidates recalls products linked to semantically similar items.
// Lexical scoring misses reworded names ("дрель ударная" vs "ударная
// дрель-шуруповёрт"); embedding neighbors whose items already link to a
// product surface that product as a candidate. Any failure here degrades
// to fuzzy-only matching.
func (m *Matcher) vectorCandidates(ctx context.Context, item *models.SupplierItem, names []models.ProductName) []models.MatchCandidate {
	if m.embedder == nil || m.vectors == nil {
		return nil
	}

	query, err := m.embedder.GenerateEmbedding(ctx, item.Name)
	if err != nil {
		m.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Query embedding failed, fuzzy-only matching")
		return nil
	}
	neighbors, err := m.vectors.SearchTopK(ctx, query, m.config.MaxCandidates, item.ID)
	if err != nil {
		m.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Vector recall failed, fuzzy-only matching")
		return nil
	}

	activeNames := make(map[string]string, len(names))
	for _, name := range names {
		activeNames[name.ID] = name.Name
	}

	var candidates []models.MatchCandidate
	seen := make(map[string]bool)
	for _, neighbor := range neighbors {
		linked, err := m.items.GetByID(ctx, neighbor.SupplierItemID)
		if err != nil || linked == nil || linked.ProductID == nil {
			continue
		}
		if linked.MatchStatus != models.MatchAuto && linked.MatchStatus != models.MatchVerified {
			continue
		}
		productID := *linked.ProductID
		name, active := activeNames[productID]
		if !active || seen[productID] {
			continue
		}
		seen[productID] = true
		candidates = append(candidates, models.MatchCandidate{
			ProductID: productID,
			Name:      name,
			Score:     neighbor.Similarity * 100,
		})
	}
	return candidates
}

// mergeCandidateSets unions fuzzy and vector candidates per product,
// keeping the higher score, sorted descending and capped
func mergeCandidateSets(fuzzy, recalled []models.MatchCandidate, max int) []models.MatchCandidate {
	merged := make([]models.MatchCandidate, 0, len(fuzzy)+len(recalled))
	index := make(map[string]int, len(fuzzy))
	for _, candidate := range fuzzy {
		index[candidate.ProductID] = len(merged)
		merged = append(merged, candidate)
	}
	for _, candidate := range recalled {
		if i, ok := index[candidate.ProductID]; ok {
			if candidate.Score > merged[i].Score {
				merged[i].Score = candidate.Score
			}
			continue
		}
		index[candidate.ProductID] = len(merged)
		merged = append(merged, candidate)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

func (m *Matcher) decideByScore(score float64) models.MatchStatus {
	switch {
	case score >= m.config.AutoThreshold:
		return models.MatchAuto
	case score >= m.config.PotentialThreshold:
		return models.MatchPotential
	default:
		return models.MatchUnmatched
	}
}

func (m *Matcher) decideByConfidence(confidence float64) models.MatchStatus {
	switch {
	case confidence >= m.config.ConfidenceAuto:
		return models.MatchAuto
	case confidence >= m.config.ConfidenceReview:
		return models.MatchPotential
	default:
		return models.MatchUnmatched
	}
}

// persist writes the match outcome to the item and, for potential matches,
// upserts a review entry
func (m *Matcher) persist(ctx context.Context, item *models.SupplierItem, result *models.MatchResult) error {
	var productID *string
	var score *float64
	if result.BestMatch != nil {
		score = &result.BestMatch.Score
	}
	if result.Status == models.MatchAuto && result.BestMatch != nil {
		productID = &result.BestMatch.ProductID
	}

	if err := m.items.SetMatch(ctx, item.ID, productID, result.Status, score, result.Candidates); err != nil {
		return fmt.Errorf("failed to persist match for item %s: %w", item.ID, err)
	}

	if result.Status == models.MatchPotential {
		ttl := time.Duration(m.config.ReviewTTLDays) * 24 * time.Hour
		entry := &models.ReviewEntry{
			SupplierItemID: item.ID,
			Candidates:     result.Candidates,
			Status:         models.ReviewPending,
			CreatedAt:      time.Now().UTC(),
			ExpiresAt:      time.Now().UTC().Add(ttl),
		}
		if err := m.review.Enqueue(ctx, entry); err != nil {
			return fmt.Errorf("failed to enqueue review for item %s: %w", item.ID, err)
		}
	}

	// Auto-matched items change aggregates on the linked product
	if result.Status == models.MatchAuto && productID != nil {
		if err := m.products.RecomputeAggregates(ctx, *productID); err != nil {
			m.logger.Warn().Err(err).Str("product_id", *productID).Msg("Aggregate recompute failed after auto-match")
		}
	}

	return nil
}

// mergeReranked replaces the reranked candidate in the list so stored
// candidates carry the LLM confidence and reasoning
func mergeReranked(candidates []models.MatchCandidate, reranked *models.MatchCandidate) []models.MatchCandidate {
	out := make([]models.MatchCandidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		if out[i].ProductID == reranked.ProductID {
			out[i] = *reranked
			break
		}
	}
	return out
}
