package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/supplyline/internal/models"
)

// Renderer converts spreadsheet data into markdown tables sliced into
// overlapping row chunks. Every chunk repeats the header row so it can be
// handed to the extractor standalone.
type Renderer struct {
	chunkSize     int
	chunkOverlap  int
	maxCellLength int
	logger        arbor.ILogger
}

// NewRenderer creates a markdown renderer with the given chunking parameters
func NewRenderer(chunkSize, chunkOverlap, maxCellLength int, logger arbor.ILogger) *Renderer {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 5
	}
	if maxCellLength <= 0 {
		maxCellLength = 50
	}
	return &Renderer{
		chunkSize:     chunkSize,
		chunkOverlap:  chunkOverlap,
		maxCellLength: maxCellLength,
		logger:        logger,
	}
}

// ListSheets returns metadata for every worksheet in the workbook
func (r *Renderer) ListSheets(f *excelize.File) ([]models.SheetInfo, error) {
	names := f.GetSheetList()
	sheets := make([]models.SheetInfo, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		colCount := 0
		for _, row := range rows {
			if len(row) > colCount {
				colCount = len(row)
			}
		}
		sheets = append(sheets, models.SheetInfo{
			Name:     name,
			RowCount: len(rows),
			ColCount: colCount,
			IsEmpty:  len(rows) == 0,
		})
	}
	return sheets, nil
}

// RenderSheet renders one worksheet into overlapping markdown chunks.
// Merged cells are filled down: every cell of a merged range receives the
// range's value, so category header rows survive row-wise chunking.
func (r *Renderer) RenderSheet(f *excelize.File, sheet string) ([]models.MarkdownChunk, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := r.fillMergedCells(f, sheet, rows); err != nil {
		r.logger.Warn().Err(err).Str("sheet", sheet).Msg("Failed to resolve merged cells, rendering raw grid")
	}

	// Normalize to a rectangular grid
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	grid := make([][]string, len(rows))
	for i, row := range rows {
		grid[i] = make([]string, width)
		for j := 0; j < width; j++ {
			if j < len(row) {
				grid[i][j] = r.formatCell(row[j])
			}
		}
	}

	return r.chunkGrid(grid), nil
}

// RenderCSV renders a CSV file into overlapping markdown chunks
func (r *Renderer) RenderCSV(path string) ([]models.MarkdownChunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return r.renderCSVReader(file)
}

func (r *Renderer) renderCSVReader(reader io.Reader) ([]models.MarkdownChunk, error) {
	grid, err := readCSVGrid(reader)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, nil
	}

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range grid {
		padded := make([]string, width)
		for j := 0; j < width; j++ {
			if j < len(row) {
				padded[j] = r.formatCell(row[j])
			}
		}
		grid[i] = padded
	}

	return r.chunkGrid(grid), nil
}

// ReadCSVRows loads a CSV file as a raw grid for the direct parser
func ReadCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return readCSVGrid(file)
}

func readCSVGrid(reader io.Reader) ([][]string, error) {
	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1 // Supplier CSVs have ragged rows
	cr.LazyQuotes = true

	var grid [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		grid = append(grid, record)
	}
	return grid, nil
}

// fillMergedCells writes each merged range's value into every covered cell
func (r *Renderer) fillMergedCells(f *excelize.File, sheet string, rows [][]string) error {
	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return err
	}
	for _, merge := range merges {
		startCol, startRow, err := excelize.CellNameToCoordinates(merge.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(merge.GetEndAxis())
		if err != nil {
			continue
		}
		value := merge.GetCellValue()
		for row := startRow; row <= endRow; row++ {
			for col := startCol; col <= endCol; col++ {
				ri, ci := row-1, col-1
				if ri >= len(rows) {
					continue
				}
				for ci >= len(rows[ri]) {
					rows[ri] = append(rows[ri], "")
				}
				rows[ri][ci] = value
			}
		}
	}
	return nil
}

// formatCell escapes markdown table syntax and truncates long values
func (r *Renderer) formatCell(value string) string {
	cell := strings.TrimSpace(value)
	cell = strings.ReplaceAll(cell, "\r\n", " ")
	cell = strings.ReplaceAll(cell, "\n", " ")
	cell = strings.ReplaceAll(cell, "|", "\\|")
	// Truncate on rune boundaries so Cyrillic text stays valid UTF-8
	if runes := []rune(cell); len(runes) > r.maxCellLength {
		cell = string(runes[:r.maxCellLength]) + "..."
	}
	return cell
}

// chunkGrid slices data rows into overlapping chunks. The first grid row is
// the header and is repeated (with the separator) at the top of each chunk.
// Chunks cover rows [0..size), [size-overlap..2*size-overlap), and so on.
func (r *Renderer) chunkGrid(grid [][]string) []models.MarkdownChunk {
	header := grid[0]
	dataRows := grid[1:]
	totalRows := len(dataRows)

	headerLine := renderRow(header)
	separator := renderSeparator(len(header))

	if totalRows == 0 {
		return []models.MarkdownChunk{{
			ChunkID:   0,
			StartRow:  0,
			EndRow:    0,
			Markdown:  headerLine + "\n" + separator + "\n",
			TotalRows: 0,
		}}
	}

	step := r.chunkSize - r.chunkOverlap
	var chunks []models.MarkdownChunk
	for start := 0; start < totalRows; start += step {
		end := start + r.chunkSize
		if end > totalRows {
			end = totalRows
		}

		var sb strings.Builder
		sb.WriteString(headerLine)
		sb.WriteString("\n")
		sb.WriteString(separator)
		sb.WriteString("\n")
		for _, row := range dataRows[start:end] {
			sb.WriteString(renderRow(row))
			sb.WriteString("\n")
		}

		chunks = append(chunks, models.MarkdownChunk{
			ChunkID:   len(chunks),
			StartRow:  start,
			EndRow:    end,
			Markdown:  sb.String(),
			TotalRows: totalRows,
		})

		if end == totalRows {
			break
		}
	}
	return chunks
}

func renderRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func renderSeparator(width int) string {
	parts := make([]string, width)
	for i := range parts {
		parts[i] = "---"
	}
	return "| " + strings.Join(parts, " | ") + " |"
}
