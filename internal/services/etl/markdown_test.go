package etl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]interface{}) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	return f
}

func TestRenderSheetBasicTable(t *testing.T) {
	f := buildWorkbook(t, "Products", [][]interface{}{
		{"Name", "Price"},
		{"Widget A", "100"},
		{"Widget B", "200"},
	})
	defer f.Close()

	renderer := NewRenderer(50, 5, 50, arbor.NewLogger())
	chunks, err := renderer.RenderSheet(f, "Products")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	lines := strings.Split(strings.TrimRight(chunks[0].Markdown, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| Name | Price |", lines[0])
	assert.Equal(t, "| --- | --- |", lines[1])
	assert.Equal(t, "| Widget A | 100 |", lines[2])
	assert.Equal(t, 2, chunks[0].TotalRows)
}

func TestRenderSheetChunkOverlap(t *testing.T) {
	rows := [][]interface{}{{"Name", "Price"}}
	for i := 0; i < 12; i++ {
		rows = append(rows, []interface{}{strings.Repeat("x", i+1), i + 1})
	}
	f := buildWorkbook(t, "Products", rows)
	defer f.Close()

	renderer := NewRenderer(5, 2, 50, arbor.NewLogger())
	chunks, err := renderer.RenderSheet(f, "Products")
	require.NoError(t, err)

	// 12 data rows, size 5, overlap 2: [0,5) [3,8) [6,11) [9,12)
	require.Len(t, chunks, 4)
	assert.Equal(t, 0, chunks[0].StartRow)
	assert.Equal(t, 5, chunks[0].EndRow)
	assert.Equal(t, 3, chunks[1].StartRow)
	assert.Equal(t, 8, chunks[1].EndRow)
	assert.Equal(t, 9, chunks[3].StartRow)
	assert.Equal(t, 12, chunks[3].EndRow)

	// Every chunk repeats the header
	for _, chunk := range chunks {
		assert.True(t, strings.HasPrefix(chunk.Markdown, "| Name | Price |\n| --- | --- |\n"))
	}
}

func TestRenderSheetMergedCellsFillDown(t *testing.T) {
	f := buildWorkbook(t, "Products", [][]interface{}{
		{"Category", "Name", "Price"},
		{"Tools", "Hammer", "10"},
		{"", "Wrench", "15"},
		{"", "Pliers", "12"},
	})
	defer f.Close()
	// Merge the category column over three product rows
	require.NoError(t, f.MergeCell("Products", "A2", "A4"))

	renderer := NewRenderer(50, 5, 50, arbor.NewLogger())
	chunks, err := renderer.RenderSheet(f, "Products")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	// All three rows carry the merged value
	assert.Equal(t, 3, strings.Count(chunks[0].Markdown, "| Tools |"))
}

func TestFormatCellEscapesAndTruncates(t *testing.T) {
	renderer := NewRenderer(50, 5, 10, arbor.NewLogger())

	assert.Equal(t, `a \| b`, renderer.formatCell("a | b"))
	assert.Equal(t, "one two", renderer.formatCell("one\ntwo"))

	long := renderer.formatCell("averylongcellvalue")
	assert.Equal(t, "averylongc...", long)

	// Cyrillic truncation stays on rune boundaries
	cyrillic := renderer.formatCell("Втулка переходная längere")
	assert.True(t, strings.HasSuffix(cyrillic, "..."))
	assert.Equal(t, "Втулка пер...", cyrillic)
}

func TestRenderCSV(t *testing.T) {
	csvData := "Name,Price\nWidget A,100\n\"Widget, B\",200\n"
	renderer := NewRenderer(50, 5, 50, arbor.NewLogger())

	chunks, err := renderer.renderCSVReader(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Markdown, "| Widget, B | 200 |")
	assert.Equal(t, 2, chunks[0].TotalRows)
}

func TestRenderCSVRaggedRows(t *testing.T) {
	csvData := "Name,Price,Note\nWidget A,100\nWidget B,200,special\n"
	renderer := NewRenderer(50, 5, 50, arbor.NewLogger())

	chunks, err := renderer.renderCSVReader(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	// Short rows are padded to the table width
	assert.Contains(t, chunks[0].Markdown, "| Widget A | 100 |  |")
}

func TestListSheets(t *testing.T) {
	f := buildWorkbook(t, "Products", [][]interface{}{
		{"Name", "Price"},
		{"Widget", "10"},
	})
	defer f.Close()
	_, err := f.NewSheet("Empty")
	require.NoError(t, err)

	renderer := NewRenderer(50, 5, 50, arbor.NewLogger())
	sheets, err := renderer.ListSheets(f)
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	assert.Equal(t, "Products", sheets[0].Name)
	assert.Equal(t, 2, sheets[0].RowCount)
	assert.False(t, sheets[0].IsEmpty)
	assert.True(t, sheets[1].IsEmpty)
}
