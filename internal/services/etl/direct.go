package etl

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/models"
)

// Column keyword sets for header detection, English and Russian
var (
	nameColumnKeywords     = []string{"name", "product", "наименование", "название", "товар", "номенклатур"}
	priceColumnKeywords    = []string{"price", "rrc", "цена", "розниц", "ррц", "стоимость"}
	priceOptColumnKeywords = []string{"wholesale", "опт"}
	skuColumnKeywords      = []string{"sku", "article", "артикул", "код"}
	brandColumnKeywords    = []string{"brand", "manufacturer", "бренд", "производитель"}
	unitColumnKeywords     = []string{"unit", "ед.", "ед "}
	categoryColumnKeywords = []string{"category", "категория", "раздел", "группа"}
	stockColumnKeywords    = []string{"stock", "availability", "наличие", "остаток"}
)

// headerScanDepth bounds how far into a sheet the header may sit; supplier
// files often carry a few banner rows above the table.
const headerScanDepth = 10

// DirectParser extracts products from tabular rows without the LLM: it
// locates a header row by column keywords and maps cells positionally.
// Files whose headers defeat keyword matching need the semantic path.
type DirectParser struct {
	logger arbor.ILogger
}

// NewDirectParser creates the keyword-mapping parser
func NewDirectParser(logger arbor.ILogger) *DirectParser {
	return &DirectParser{logger: logger}
}

// columnMap holds detected column indexes; -1 means the column is absent
type columnMap struct {
	name     int
	price    int
	priceOpt int
	sku      int
	brand    int
	unit     int
	category int
	stock    int
}

// Parse converts a rectangular grid into extracted products. Row failures
// are collected per row, never fatal. Returns nothing when no header row
// can be detected.
func (p *DirectParser) Parse(grid [][]string) ([]models.ExtractedProduct, []models.ExtractionError) {
	headerRow, columns, ok := p.detectHeader(grid)
	if !ok {
		p.logger.Warn().Msg("No header row detected, direct parse yields nothing")
		return nil, []models.ExtractionError{{
			Type:    string(models.ErrorParsing),
			Message: "no header row with name and price columns detected",
		}}
	}

	var products []models.ExtractedProduct
	var errors []models.ExtractionError
	for i := headerRow + 1; i < len(grid); i++ {
		row := grid[i]
		rowNumber := i + 1

		name := strings.Join(strings.Fields(cellAt(row, columns.name)), " ")
		if name == "" {
			// Blank and section-divider rows are not failures
			continue
		}
		if runes := []rune(name); len(runes) > maxProductNameLength {
			errors = append(errors, rowError(rowNumber, "product name too long", row))
			continue
		}

		price, err := ParsePrice(cellAt(row, columns.price))
		if err != nil {
			errors = append(errors, rowError(rowNumber, "invalid price: "+err.Error(), row))
			continue
		}

		product := models.ExtractedProduct{
			Name:     name,
			PriceRRC: price,
			SKU:      strings.TrimSpace(cellAt(row, columns.sku)),
			Brand:    strings.TrimSpace(cellAt(row, columns.brand)),
			Unit:     strings.TrimSpace(cellAt(row, columns.unit)),
			RawData:  rowData(grid[headerRow], row),
		}
		if opt := cellAt(row, columns.priceOpt); opt != "" {
			if optPrice, err := ParsePrice(opt); err == nil && !optPrice.IsZero() {
				product.PriceOpt = &optPrice
			}
		}
		if path := cellAt(row, columns.category); path != "" {
			product.CategoryPath = SplitCategoryPath(path)
		}
		if stock := cellAt(row, columns.stock); stock != "" {
			val := models.Characteristics{"in_stock": stock}.GetBoolTolerant("in_stock")
			product.InStock = &val
		}
		products = append(products, product)
	}

	p.logger.Debug().
		Int("products", len(products)).
		Int("row_errors", len(errors)).
		Int("header_row", headerRow+1).
		Msg("Direct parse complete")
	return products, errors
}

// detectHeader finds the first row mapping both a name and a price column
func (p *DirectParser) detectHeader(grid [][]string) (int, columnMap, bool) {
	depth := len(grid)
	if depth > headerScanDepth {
		depth = headerScanDepth
	}
	for i := 0; i < depth; i++ {
		columns := mapColumns(grid[i])
		if columns.name >= 0 && columns.price >= 0 {
			return i, columns, true
		}
	}
	return 0, columnMap{}, false
}

func mapColumns(header []string) columnMap {
	columns := columnMap{name: -1, price: -1, priceOpt: -1, sku: -1, brand: -1, unit: -1, category: -1, stock: -1}
	for idx, cell := range header {
		lower := strings.ToLower(strings.TrimSpace(cell))
		if lower == "" {
			continue
		}
		switch {
		case columns.priceOpt < 0 && matchesAny(lower, priceOptColumnKeywords):
			columns.priceOpt = idx
		case columns.name < 0 && matchesAny(lower, nameColumnKeywords):
			columns.name = idx
		case columns.price < 0 && matchesAny(lower, priceColumnKeywords):
			columns.price = idx
		case columns.sku < 0 && matchesAny(lower, skuColumnKeywords):
			columns.sku = idx
		case columns.brand < 0 && matchesAny(lower, brandColumnKeywords):
			columns.brand = idx
		case columns.unit < 0 && matchesAny(lower, unitColumnKeywords):
			columns.unit = idx
		case columns.category < 0 && matchesAny(lower, categoryColumnKeywords):
			columns.category = idx
		case columns.stock < 0 && matchesAny(lower, stockColumnKeywords):
			columns.stock = idx
		}
	}
	return columns
}

func matchesAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(value, keyword) {
			return true
		}
	}
	return false
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func rowError(rowNumber int, message string, row []string) models.ExtractionError {
	return models.ExtractionError{
		RowNumber: rowNumber,
		Type:      string(models.ErrorValidation),
		Message:   message,
		RawData:   map[string]interface{}{"row": strings.Join(row, " | ")},
	}
}

// rowData pairs header cells with row cells for traceability
func rowData(header, row []string) map[string]interface{} {
	data := make(map[string]interface{}, len(header))
	for i, key := range header {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		data[key] = cellAt(row, i)
	}
	return data
}
