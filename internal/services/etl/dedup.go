package etl

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/models"
)

// Deduplicator folds within-file duplicates: records with the same
// normalized name whose prices agree within a relative tolerance.
// Same-name records with genuinely different prices are distinct variants
// and all survive.
type Deduplicator struct {
	tolerance decimal.Decimal
	logger    arbor.ILogger
}

// NewDeduplicator creates a deduplicator with a relative price tolerance,
// e.g. 0.01 for one percent
func NewDeduplicator(tolerance float64, logger arbor.ILogger) *Deduplicator {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Deduplicator{
		tolerance: decimal.NewFromFloat(tolerance),
		logger:    logger,
	}
}

// Dedup removes duplicates, preserving first-seen order. The first record
// of each group is kept; later records within tolerance are folded into it.
// Running Dedup over its own output changes nothing.
func (d *Deduplicator) Dedup(products []models.ExtractedProduct) ([]models.ExtractedProduct, models.DedupStats) {
	stats := models.DedupStats{Input: len(products)}
	if len(products) == 0 {
		return products, stats
	}

	// Kept records grouped by normalized name, in kept order
	keptByName := make(map[string][]int)
	kept := make([]models.ExtractedProduct, 0, len(products))
	groups := make(map[string]*models.DuplicateGroup)

	for _, product := range products {
		name := product.NormalizedName()

		foldedInto := -1
		for _, idx := range keptByName[name] {
			if d.pricesMatch(kept[idx].PriceRRC, product.PriceRRC) {
				foldedInto = idx
				break
			}
		}

		if foldedInto >= 0 {
			stats.Removed++
			key := groupKey(name, kept[foldedInto].PriceRRC)
			group, ok := groups[key]
			if !ok {
				group = &models.DuplicateGroup{
					Key:       key,
					KeptName:  kept[foldedInto].Name,
					KeptPrice: kept[foldedInto].PriceRRC,
				}
				groups[key] = group
			}
			group.Count++
			continue
		}

		if len(keptByName[name]) > 0 {
			stats.Variants++
		}
		keptByName[name] = append(keptByName[name], len(kept))
		kept = append(kept, product)
	}

	stats.Unique = len(kept)
	for _, group := range groups {
		stats.Groups = append(stats.Groups, *group)
	}

	if stats.Removed > 0 {
		d.logger.Debug().
			Int("input", stats.Input).
			Int("unique", stats.Unique).
			Int("removed", stats.Removed).
			Int("variants", stats.Variants).
			Msg("Within-file dedup complete")
	}

	return kept, stats
}

// pricesMatch reports whether |a-b| <= tolerance * max(a, b).
// A zero price never matches a non-zero one regardless of tolerance.
func (d *Deduplicator) pricesMatch(a, b decimal.Decimal) bool {
	if a.IsZero() != b.IsZero() {
		return false
	}
	if a.Equal(b) {
		return true
	}
	max := a
	if b.GreaterThan(a) {
		max = b
	}
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(d.tolerance.Mul(max))
}

func groupKey(name string, price decimal.Decimal) string {
	return fmt.Sprintf("%s@%s", name, price.String())
}
