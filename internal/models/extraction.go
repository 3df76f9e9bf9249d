package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SheetInfo describes one worksheet, used by the sheet selector
type SheetInfo struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
	ColCount int    `json:"col_count"`
	IsEmpty  bool   `json:"is_empty"`
}

// MarkdownChunk is one overlapping row-block of a rendered sheet.
// Each chunk carries the full header + separator so it parses standalone.
type MarkdownChunk struct {
	ChunkID   int    `json:"chunk_id"`
	StartRow  int    `json:"start_row"`
	EndRow    int    `json:"end_row"`
	Markdown  string `json:"markdown"`
	TotalRows int    `json:"total_rows"`
}

// SelectionResult is the sheet selector's output: a partition of the
// input sheet names into selected and skipped.
type SelectionResult struct {
	Selected           []string `json:"selected"`
	Skipped            []string `json:"skipped"`
	Reasoning          string   `json:"reasoning"`
	UsedLLM            bool     `json:"used_llm"`
	PrioritySheetFound bool     `json:"priority_sheet_found"`
}

// ExtractedProduct is one typed product record produced by the LLM extractor
type ExtractedProduct struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Brand        string                 `json:"brand,omitempty"`
	Unit         string                 `json:"unit,omitempty"`
	SKU          string                 `json:"sku,omitempty"`
	PriceRRC     decimal.Decimal        `json:"price_rrc"`
	PriceOpt     *decimal.Decimal       `json:"price_opt,omitempty"`
	CategoryPath []string               `json:"category_path,omitempty"`
	CategoryID   *string                `json:"category_id,omitempty"` // Leaf id attached after normalization
	InStock      *bool                  `json:"in_stock,omitempty"`
	RawData      map[string]interface{} `json:"raw_data,omitempty"`
}

// NormalizedName lower-cases and collapses whitespace for dedup keys
func (p *ExtractedProduct) NormalizedName() string {
	return NormalizeName(p.Name)
}

// NormalizeName lower-cases a name and collapses runs of whitespace
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ExtractionError records a single-row or single-chunk failure without
// aborting extraction
type ExtractionError struct {
	ChunkID   int                    `json:"chunk_id"`
	RowNumber int                    `json:"row_number,omitempty"`
	Type      string                 `json:"type"` // "validation" or "llm_error"
	Message   string                 `json:"message"`
	RawData   map[string]interface{} `json:"raw_data,omitempty"`
}

// ExtractionStatus is the per-file outcome by success rate
type ExtractionStatus string

const (
	ExtractionSuccess             ExtractionStatus = "success"
	ExtractionCompletedWithErrors ExtractionStatus = "completed_with_errors"
	ExtractionFailed              ExtractionStatus = "failed"
)

// ExtractionResult aggregates one sheet's (or one file's) extraction
type ExtractionResult struct {
	Products          []ExtractedProduct `json:"products"`
	SheetName         string             `json:"sheet_name"`
	TotalRows         int                `json:"total_rows"`
	Successful        int                `json:"successful"`
	Failed            int                `json:"failed"`
	DuplicatesRemoved int                `json:"duplicates_removed"`
	Errors            []ExtractionError  `json:"extraction_errors,omitempty"`
	Status            ExtractionStatus   `json:"status"`
}

// SuccessRate returns successful/total_rows, 1 when the file was empty
func (r *ExtractionResult) SuccessRate() float64 {
	if r.TotalRows == 0 {
		return 1
	}
	return float64(r.Successful) / float64(r.TotalRows)
}

// StatusForRate maps a success rate to the extraction status:
// 100% success, >=80% completed_with_errors, otherwise failed.
func StatusForRate(rate float64) ExtractionStatus {
	switch {
	case rate >= 1:
		return ExtractionSuccess
	case rate >= 0.8:
		return ExtractionCompletedWithErrors
	default:
		return ExtractionFailed
	}
}

// DuplicateGroup records the duplicates folded into one kept product
type DuplicateGroup struct {
	Key       string          `json:"key"`
	KeptName  string          `json:"kept_name"`
	KeptPrice decimal.Decimal `json:"kept_price"`
	Count     int             `json:"count"` // Folded duplicates, excluding the kept one
}

// DedupStats summarizes a deduplicator run
type DedupStats struct {
	Input    int              `json:"input"`
	Unique   int              `json:"unique"`
	Removed  int              `json:"removed"`
	Groups   []DuplicateGroup `json:"groups,omitempty"`
	Variants int              `json:"variants"` // Same-name different-price entries kept
}
