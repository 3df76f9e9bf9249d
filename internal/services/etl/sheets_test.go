package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/models"
)

func sheet(name string, rows int) models.SheetInfo {
	return models.SheetInfo{Name: name, RowCount: rows, ColCount: 3, IsEmpty: rows == 0}
}

func TestSelectPrioritySheetWins(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("README", 10),
		sheet("Upload to Site", 500),
		sheet("Drafts", 300),
	}, nil, SelectOptions{})

	assert.Equal(t, []string{"Upload to Site"}, result.Selected)
	assert.True(t, result.PrioritySheetFound)
	assert.ElementsMatch(t, []string{"README", "Drafts"}, result.Skipped)
}

func TestSelectEarlierPriorityEntryBeatsLater(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	// "Products" appears first in the workbook, but "upload to site" sits
	// earlier in the priority list and must win alone
	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Products", 800),
		sheet("Upload to Site", 120),
	}, nil, SelectOptions{})

	assert.Equal(t, []string{"Upload to Site"}, result.Selected)
	assert.Equal(t, []string{"Products"}, result.Skipped)
	assert.True(t, result.PrioritySheetFound)
}

func TestSelectRussianPriorityName(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Инструкция", 5),
		sheet("Товары", 1000),
	}, nil, SelectOptions{})

	assert.Equal(t, []string{"Товары"}, result.Selected)
	assert.True(t, result.PrioritySheetFound)
}

func TestSelectCallerPinnedSheetOverridesPriority(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Upload to Site", 500),
		sheet("Special Offers", 40),
	}, nil, SelectOptions{PrioritySheet: "special offers"})

	assert.Equal(t, []string{"Special Offers"}, result.Selected)
	assert.Equal(t, []string{"Upload to Site"}, result.Skipped)
}

func TestSelectCallerPinnedSheetMissingFallsThrough(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Товары", 100),
	}, nil, SelectOptions{PrioritySheet: "No Such Sheet"})

	assert.Equal(t, []string{"Товары"}, result.Selected)
}

func TestSelectSkipsEmptySheets(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Products", 0),
		sheet("Catalog", 100),
	}, nil, SelectOptions{})

	assert.Equal(t, []string{"Catalog"}, result.Selected)
	assert.Contains(t, result.Skipped, "Products")
}

func TestSelectHeuristicsKeepMultipleSheets(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	// Keyword-named sheets and big anonymous sheets all survive; tiny and
	// service sheets do not
	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Цены опт", 200),
		sheet("Sheet1", 150),
		sheet("Scratch", 3),
		sheet("Readme first", 50),
	}, nil, SelectOptions{})

	assert.ElementsMatch(t, []string{"Цены опт", "Sheet1"}, result.Selected)
	assert.ElementsMatch(t, []string{"Scratch", "Readme first"}, result.Skipped)
}

func TestSelectDropsSheetsBelowMinRows(t *testing.T) {
	s := NewSelector(nil, false, 5, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Inventory", 4),
		sheet("Sheet2", 60),
	}, nil, SelectOptions{})

	assert.Equal(t, []string{"Sheet2"}, result.Selected)
	assert.Contains(t, result.Skipped, "Inventory")
}

func TestSelectLLMNarrowsAmbiguousCandidates(t *testing.T) {
	llmStub := &stubLLM{response: `{"sheet": "Sheet2"}`}
	s := NewSelector(llmStub, true, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Sheet1", 100),
		sheet("Sheet2", 100),
	}, map[string][]string{
		"Sheet1": {"Date", "Author"},
		"Sheet2": {"Название", "Цена"},
	}, SelectOptions{AllowLLM: true})

	assert.Equal(t, []string{"Sheet2"}, result.Selected)
	assert.True(t, result.UsedLLM)
	assert.Contains(t, result.Skipped, "Sheet1")
}

func TestSelectLLMSkippedWithoutCallerOptIn(t *testing.T) {
	llmStub := &stubLLM{response: `{"sheet": "Sheet2"}`}
	s := NewSelector(llmStub, true, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Sheet1", 100),
		sheet("Sheet2", 100),
	}, nil, SelectOptions{})

	assert.ElementsMatch(t, []string{"Sheet1", "Sheet2"}, result.Selected)
	assert.False(t, result.UsedLLM)
	assert.Zero(t, llmStub.calls)
}

func TestSelectLLMFailureKeepsHeuristicResult(t *testing.T) {
	llmStub := &stubLLM{err: errors.New("model unavailable")}
	s := NewSelector(llmStub, true, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Sheet1", 100),
		sheet("Sheet2", 100),
	}, nil, SelectOptions{AllowLLM: true})

	assert.ElementsMatch(t, []string{"Sheet1", "Sheet2"}, result.Selected)
	assert.False(t, result.UsedLLM)
}

func TestSelectAllBlacklistedFallsBackToLargest(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Readme", 10),
		sheet("Настройки импорта", 400),
	}, nil, SelectOptions{})

	require.Len(t, result.Selected, 1)
	assert.Equal(t, "Настройки импорта", result.Selected[0])
}

func TestSelectNothingUsable(t *testing.T) {
	s := NewSelector(nil, false, 2, arbor.NewLogger())

	result := s.Select(context.Background(), []models.SheetInfo{
		sheet("Empty1", 0),
		sheet("Empty2", 0),
	}, nil, SelectOptions{})

	assert.Empty(t, result.Selected)
	assert.Len(t, result.Skipped, 2)
}
