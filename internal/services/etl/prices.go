package etl

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// currencyTokens are stripped from price strings before numeric parsing
var currencyTokens = []string{
	"руб.", "руб", "р.", "rub", "usd", "eur", "грн",
	"€", "$", "₽", "£", "₴",
}

// ParsePrice normalizes messy supplier price strings into a decimal.
// Handled forms: "1234.56", "1,234.56", "1 234,56", "1.234,56", "€1234.56",
// "1234,56 руб.", and ranges like "100-150" (the lower bound wins).
// Non-numeric input returns an error.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}

	for _, token := range currencyTokens {
		s = strings.ReplaceAll(s, token, "")
	}
	s = strings.TrimSpace(s)

	// Ranges take the lower bound. Only split on a dash with digits on both
	// sides so negative-looking junk still fails below.
	if idx := rangeDashIndex(s); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}

	// Drop grouping spaces (including non-breaking)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ' ' {
			return -1
		}
		return r
	}, s)

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal point
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		if strings.Count(s, ",") == 1 && decimalDigitsAfter(s, ",") <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasDot && strings.Count(s, ".") > 1:
		// Multiple dots are grouping separators except the last
		last := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}

	if s == "" || !containsDigit(s) {
		return decimal.Zero, fmt.Errorf("not a price: %q", raw)
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a price: %q", raw)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price: %q", raw)
	}
	return price, nil
}

// ParsePriceValue parses prices arriving as JSON numbers or strings
func ParsePriceValue(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("missing price")
	case float64:
		if v < 0 {
			return decimal.Zero, fmt.Errorf("negative price: %v", v)
		}
		return decimal.NewFromFloat(v), nil
	case int:
		if v < 0 {
			return decimal.Zero, fmt.Errorf("negative price: %v", v)
		}
		return decimal.NewFromInt(int64(v)), nil
	case string:
		return ParsePrice(v)
	default:
		return decimal.Zero, fmt.Errorf("unsupported price type %T", value)
	}
}

// rangeDashIndex returns the index of a range dash (digit on both sides),
// or -1 when the string is not a range
func rangeDashIndex(s string) int {
	runes := []rune(s)
	for i := 1; i < len(runes)-1; i++ {
		if runes[i] != '-' && runes[i] != '–' {
			continue
		}
		var before, after rune
		for j := i - 1; j >= 0; j-- {
			if !unicode.IsSpace(runes[j]) {
				before = runes[j]
				break
			}
		}
		for j := i + 1; j < len(runes); j++ {
			if !unicode.IsSpace(runes[j]) {
				after = runes[j]
				break
			}
		}
		if unicode.IsDigit(before) && unicode.IsDigit(after) {
			return len(string(runes[:i]))
		}
	}
	return -1
}

func decimalDigitsAfter(s, sep string) int {
	idx := strings.LastIndex(s, sep)
	return len(s) - idx - 1
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
