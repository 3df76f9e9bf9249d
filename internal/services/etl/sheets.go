package etl

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// prioritySheetNames is an ordered list of exact (case-insensitive) names
// that short-circuit selection. The first entry matched by any sheet wins
// outright; "upload to site" beats "products" even when both exist.
var prioritySheetNames = []string{
	"upload to site",
	"загрузка на сайт",
	"products",
	"товары",
	"catalog",
	"каталог",
	"price list",
	"pricelist",
	"прайс",
	"прайс-лист",
}

// blacklistExact are service-sheet names skipped on an exact match
var blacklistExact = []string{
	"metadata",
	"contacts",
	"контакты",
	"template",
	"шаблон",
}

// blacklistPartials mark service sheets; any sheet whose name contains one
// of these substrings is skipped.
var blacklistPartials = []string{
	"readme",
	"info",
	"help",
	"note",
	"config",
	"setting",
	"инструкция",
	"справка",
	"примечани",
	"настройк",
}

// sheetNameKeywords mark product-bearing sheets by name
var sheetNameKeywords = []string{
	"product", "price", "inventory", "catalog", "sku", "stock",
	"товар", "цена", "прайс", "каталог", "остаток", "номенклатур",
}

// keywordlessRowThreshold keeps big sheets whose names carry no signal
const keywordlessRowThreshold = 10

// SelectOptions carries per-request selection overrides
type SelectOptions struct {
	// PrioritySheet pins selection to one named sheet when present
	PrioritySheet string
	// AllowLLM lets this request use the LLM pass (still gated on the
	// selector being configured with an LLM)
	AllowLLM bool
}

// Selector picks which worksheets enter extraction. An ordered priority
// list wins outright; otherwise heuristics keep every plausible product
// sheet, and the LLM narrows the field only when several survive.
type Selector struct {
	llm     interfaces.LLMService
	useLLM  bool
	minRows int
	logger  arbor.ILogger
}

// NewSelector creates a sheet selector. llm may be nil when the LLM pass
// is disabled. minRows is the smallest sheet worth considering.
func NewSelector(llm interfaces.LLMService, useLLM bool, minRows int, logger arbor.ILogger) *Selector {
	if minRows <= 0 {
		minRows = 2
	}
	return &Selector{llm: llm, useLLM: useLLM && llm != nil, minRows: minRows, logger: logger}
}

// Select partitions sheets into selected and skipped. Every input name
// lands in exactly one of the two lists. The result selects at least one
// sheet whenever any non-empty sheet exists.
func (s *Selector) Select(ctx context.Context, sheets []models.SheetInfo, headers map[string][]string, opts SelectOptions) models.SelectionResult {
	result := models.SelectionResult{}

	nonEmpty := make([]models.SheetInfo, 0, len(sheets))
	for _, sheet := range sheets {
		if sheet.IsEmpty {
			result.Skipped = append(result.Skipped, sheet.Name)
			continue
		}
		nonEmpty = append(nonEmpty, sheet)
	}
	if len(nonEmpty) == 0 {
		result.Reasoning = "no non-empty sheets"
		return result
	}

	// A caller-pinned sheet overrides everything
	if opts.PrioritySheet != "" {
		for _, sheet := range nonEmpty {
			if strings.EqualFold(strings.TrimSpace(sheet.Name), strings.TrimSpace(opts.PrioritySheet)) {
				return exclusive(result, nonEmpty, sheet.Name, true, "caller-requested sheet")
			}
		}
		s.logger.Warn().Str("sheet", opts.PrioritySheet).Msg("Requested priority sheet not found, falling back to selection")
	}

	// Priority pass: walk the list in order so earlier entries win even
	// when a later entry also matches some sheet
	for _, priority := range prioritySheetNames {
		for _, sheet := range nonEmpty {
			if strings.ToLower(strings.TrimSpace(sheet.Name)) == priority {
				return exclusive(result, nonEmpty, sheet.Name, true, fmt.Sprintf("priority sheet %q matched", priority))
			}
		}
	}

	// Heuristic pass: drop tiny and service sheets, keep anything that
	// looks like a product sheet by name or is big enough to matter
	var kept []string
	var candidates []string
	for _, sheet := range nonEmpty {
		if sheet.RowCount < s.minRows || isBlacklisted(sheet.Name) {
			result.Skipped = append(result.Skipped, sheet.Name)
			continue
		}
		candidates = append(candidates, sheet.Name)
		if nameHasProductKeyword(sheet.Name) || sheet.RowCount >= keywordlessRowThreshold {
			kept = append(kept, sheet.Name)
		}
	}

	if len(kept) == 0 {
		// Nothing survived: take the largest non-empty sheet rather than
		// dropping the whole file
		largest := nonEmpty[0]
		for _, sheet := range nonEmpty[1:] {
			if sheet.RowCount > largest.RowCount {
				largest = sheet
			}
		}
		result.Selected = []string{largest.Name}
		result.Skipped = removeName(result.Skipped, largest.Name)
		for _, name := range candidates {
			if name != largest.Name {
				result.Skipped = append(result.Skipped, name)
			}
		}
		result.Reasoning = "no heuristic survivors, fell back to largest sheet"
		return result
	}

	result.Reasoning = fmt.Sprintf("heuristics kept %d of %d candidates", len(kept), len(candidates))

	// LLM pass: only when configured, requested, and genuinely ambiguous
	if s.useLLM && opts.AllowLLM && len(kept) > 1 {
		if picked, err := s.llmPick(ctx, kept, headers); err == nil {
			kept = []string{picked}
			result.UsedLLM = true
			result.Reasoning = "LLM chose among heuristic survivors"
		}
		// On LLM failure the heuristic result stands
	}

	result.Selected = kept
	for _, name := range candidates {
		if !containsName(kept, name) {
			result.Skipped = append(result.Skipped, name)
		}
	}
	return result
}

// exclusive finalizes a single-sheet selection, skipping all other sheets
func exclusive(result models.SelectionResult, sheets []models.SheetInfo, winner string, priority bool, reasoning string) models.SelectionResult {
	result.Selected = []string{winner}
	result.PrioritySheetFound = priority
	result.Reasoning = reasoning
	for _, sheet := range sheets {
		if sheet.Name != winner {
			result.Skipped = append(result.Skipped, sheet.Name)
		}
	}
	return result
}

// llmPick asks the model to pick the product sheet by name and headers
func (s *Selector) llmPick(ctx context.Context, candidates []string, headers map[string][]string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Pick the single worksheet most likely to contain a supplier product price list. Respond with JSON: {\"sheet\": \"<name>\"}\n\n")
	for _, name := range candidates {
		sb.WriteString(fmt.Sprintf("- %q: columns %v\n", name, headers[name]))
	}

	resp, err := s.llm.GenerateContent(ctx, &interfaces.ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: sb.String()}},
		OutputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"sheet": map[string]interface{}{"type": "string"}},
			"required":   []string{"sheet"},
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("LLM sheet selection failed, keeping heuristic result")
		return "", err
	}

	picked := extractSheetName(resp.Text)
	for _, name := range candidates {
		if strings.EqualFold(name, picked) {
			return name, nil
		}
	}
	return "", fmt.Errorf("LLM picked unknown sheet %q", picked)
}

func extractSheetName(text string) string {
	// Cheap parse: find "sheet" key's string value
	idx := strings.Index(text, `"sheet"`)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(`"sheet"`):]
	start := strings.Index(rest, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(rest[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return rest[start+1 : start+1+end]
}

func isBlacklisted(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, exact := range blacklistExact {
		if lower == exact {
			return true
		}
	}
	for _, partial := range blacklistPartials {
		if strings.Contains(lower, partial) {
			return true
		}
	}
	return false
}

func nameHasProductKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sheetNameKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func containsName(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func removeName(list []string, value string) []string {
	out := list[:0]
	for _, item := range list {
		if item != value {
			out = append(out, item)
		}
	}
	return out
}
