package etl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/models"
)

func product(name string, price string) models.ExtractedProduct {
	p, _ := decimal.NewFromString(price)
	return models.ExtractedProduct{Name: name, PriceRRC: p}
}

func TestDedupExactDuplicates(t *testing.T) {
	d := NewDeduplicator(0.01, arbor.NewLogger())

	unique, stats := d.Dedup([]models.ExtractedProduct{
		product("Widget A", "100"),
		product("widget  a", "100"), // Same after name normalization
		product("Widget B", "200"),
	})

	require.Len(t, unique, 2)
	assert.Equal(t, "Widget A", unique[0].Name) // First occurrence kept
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 2, stats.Unique)
}

func TestDedupWithinTolerance(t *testing.T) {
	d := NewDeduplicator(0.01, arbor.NewLogger())

	// 100 vs 100.5: diff 0.5 <= 0.01 * 100.5
	unique, stats := d.Dedup([]models.ExtractedProduct{
		product("Widget", "100"),
		product("Widget", "100.5"),
	})
	require.Len(t, unique, 1)
	assert.Equal(t, 1, stats.Removed)
}

func TestDedupKeepsPriceVariants(t *testing.T) {
	d := NewDeduplicator(0.01, arbor.NewLogger())

	unique, stats := d.Dedup([]models.ExtractedProduct{
		product("Widget", "100"),
		product("Widget", "150"), // Outside tolerance: a real variant
	})
	require.Len(t, unique, 2)
	assert.Equal(t, 0, stats.Removed)
	assert.Equal(t, 1, stats.Variants)
}

func TestDedupZeroNeverMatchesNonZero(t *testing.T) {
	// Degenerate tolerance still never folds zero into non-zero
	d := NewDeduplicator(100, arbor.NewLogger())

	unique, _ := d.Dedup([]models.ExtractedProduct{
		product("Widget", "0"),
		product("Widget", "50"),
	})
	assert.Len(t, unique, 2)
}

func TestDedupIdempotent(t *testing.T) {
	d := NewDeduplicator(0.01, arbor.NewLogger())

	input := []models.ExtractedProduct{
		product("A", "10"),
		product("a", "10"),
		product("B", "20"),
		product("B", "30"),
	}
	once, _ := d.Dedup(input)
	twice, stats := d.Dedup(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, 0, stats.Removed)
}

func TestDedupEmptyInput(t *testing.T) {
	d := NewDeduplicator(0.01, arbor.NewLogger())
	unique, stats := d.Dedup(nil)
	assert.Empty(t, unique)
	assert.Equal(t, 0, stats.Input)
}
