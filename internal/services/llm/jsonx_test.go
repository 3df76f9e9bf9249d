package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "plain object",
			input:    `{"name": "Widget"}`,
			expected: `{"name": "Widget"}`,
		},
		{
			name:     "plain array",
			input:    `[{"name": "A"}, {"name": "B"}]`,
			expected: `[{"name": "A"}, {"name": "B"}]`,
		},
		{
			name:     "fenced json block",
			input:    "```json\n{\"name\": \"Widget\"}\n```",
			expected: `{"name": "Widget"}`,
		},
		{
			name:     "fenced without language tag",
			input:    "```\n[1, 2, 3]\n```",
			expected: `[1, 2, 3]`,
		},
		{
			name:     "prose around object",
			input:    "Here is the result:\n{\"name\": \"Widget\"}\nLet me know if you need more.",
			expected: `{"name": "Widget"}`,
		},
		{
			name:     "braces inside strings do not break matching",
			input:    `{"name": "Widget {large}", "note": "a ] b"}`,
			expected: `{"name": "Widget {large}", "note": "a ] b"}`,
		},
		{
			name:     "escaped quotes inside strings",
			input:    `{"name": "He said \"hi\""}`,
			expected: `{"name": "He said \"hi\""}`,
		},
		{
			name:    "no json at all",
			input:   "Sorry, I could not process this file.",
			wantErr: true,
		},
		{
			name:    "unbalanced object",
			input:   `{"name": "Widget"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeObjects(t *testing.T) {
	t.Run("array of objects", func(t *testing.T) {
		objects, err := DecodeObjects(`[{"name": "A"}, {"name": "B"}]`)
		require.NoError(t, err)
		require.Len(t, objects, 2)
		assert.Equal(t, "A", objects[0]["name"])
	})

	t.Run("single object becomes one-element slice", func(t *testing.T) {
		objects, err := DecodeObjects(`{"name": "A"}`)
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, "A", objects[0]["name"])
	})

	t.Run("products envelope is unwrapped", func(t *testing.T) {
		objects, err := DecodeObjects(`{"products": [{"name": "A"}, {"name": "B"}, {"name": "C"}]}`)
		require.NoError(t, err)
		assert.Len(t, objects, 3)
	})

	t.Run("fenced envelope", func(t *testing.T) {
		objects, err := DecodeObjects("```json\n{\"items\": [{\"name\": \"A\"}]}\n```")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, "A", objects[0]["name"])
	})
}

func TestCanonicalizeKeys(t *testing.T) {
	t.Run("russian synonyms map to canonical keys", func(t *testing.T) {
		out := CanonicalizeKeys(map[string]interface{}{
			"Название": "Втулка",
			"Цена":     "1 234,56",
			"Артикул":  "VT-100",
			"Наличие":  "да",
		})
		assert.Equal(t, "Втулка", out["name"])
		assert.Equal(t, "1 234,56", out["price_rrc"])
		assert.Equal(t, "VT-100", out["sku"])
		assert.Equal(t, "да", out["in_stock"])
	})

	t.Run("canonical key wins over synonym", func(t *testing.T) {
		out := CanonicalizeKeys(map[string]interface{}{
			"name":     "Canonical",
			"Название": "Synonym",
		})
		assert.Equal(t, "Canonical", out["name"])
	})

	t.Run("unknown keys pass through", func(t *testing.T) {
		out := CanonicalizeKeys(map[string]interface{}{
			"warranty_months": 12,
		})
		assert.Equal(t, 12, out["warranty_months"])
	})
}
