package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON recovers a JSON document from raw model output.
// It strips markdown code fences, then locates the outermost balanced
// object or array. Models often wrap JSON in prose or fences even when
// told not to; structured output modes make this a no-op.
func ExtractJSON(text string) (string, error) {
	cleaned := stripCodeFences(text)

	start := -1
	var open, close byte
	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] == '{' || cleaned[i] == '[' {
			start = i
			open = cleaned[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON object or array found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// String contents never affect nesting
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return cleaned[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON in response (depth %d at end)", depth)
}

// stripCodeFences removes leading/trailing markdown fences like ```json
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...)
		firstLine := strings.TrimSpace(trimmed[:idx])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{[") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// DecodeObjects extracts and decodes model output into a slice of generic
// objects. A single top-level object is treated as a one-element slice;
// wrapper objects with a single array value ({"products": [...]}) are
// unwrapped.
func DecodeObjects(text string) ([]map[string]interface{}, error) {
	doc, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var objects []map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &objects); err == nil {
		return objects, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &single); err != nil {
		return nil, fmt.Errorf("response is neither a JSON array nor object: %w", err)
	}

	// Unwrap {"products": [...]} style envelopes
	if len(single) == 1 {
		for _, v := range single {
			if arr, ok := v.([]interface{}); ok {
				objects = make([]map[string]interface{}, 0, len(arr))
				for _, item := range arr {
					if obj, ok := item.(map[string]interface{}); ok {
						objects = append(objects, obj)
					}
				}
				return objects, nil
			}
		}
	}

	return []map[string]interface{}{single}, nil
}

// keySynonyms maps source-language and alias field names to canonical keys.
// Supplier files come with Russian headers as often as English ones.
var keySynonyms = map[string]string{
	"название":       "name",
	"наименование":   "name",
	"товар":          "name",
	"product":        "name",
	"product_name":   "name",
	"title":          "name",
	"item":           "name",
	"цена":           "price_rrc",
	"price":          "price_rrc",
	"ррц":            "price_rrc",
	"цена ррц":       "price_rrc",
	"retail_price":   "price_rrc",
	"rrc":            "price_rrc",
	"опт":            "price_opt",
	"оптовая цена":   "price_opt",
	"wholesale_price": "price_opt",
	"opt":            "price_opt",
	"описание":       "description",
	"бренд":          "brand",
	"производитель":  "brand",
	"manufacturer":   "brand",
	"единица":        "unit",
	"ед. изм.":       "unit",
	"артикул":        "sku",
	"код":            "sku",
	"категория":      "category_path",
	"раздел":         "category_path",
	"группа":         "category_path",
	"category":       "category_path",
	"наличие":        "in_stock",
	"в наличии":      "in_stock",
	"остаток":        "in_stock",
	"stock":          "in_stock",
	"availability":   "in_stock",
}

// CanonicalizeKeys rewrites known synonym keys to canonical field names.
// Unknown keys pass through unchanged; an existing canonical key is never
// overwritten by a synonym.
func CanonicalizeKeys(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		canonical, ok := keySynonyms[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			out[k] = v
			continue
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
	}
	// Canonical originals win over synonym rewrites
	for k, v := range obj {
		lower := strings.ToLower(strings.TrimSpace(k))
		if lower == "name" || lower == "price_rrc" || lower == "price_opt" ||
			lower == "description" || lower == "brand" || lower == "unit" ||
			lower == "sku" || lower == "category_path" || lower == "in_stock" {
			out[lower] = v
		}
	}
	return out
}
