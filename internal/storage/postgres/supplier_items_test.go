package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertLookupKeyedBySupplierSKU(t *testing.T) {
	// Identity is (supplier_id, supplier_sku). Keying on the normalized
	// name would fold price variants of a shared product name into one
	// row, fabricating price history on every re-ingestion.
	assert.Contains(t, upsertLookupSQL, "supplier_id = $1 AND supplier_sku = $2")
	assert.NotContains(t, upsertLookupSQL, "normalized_name")

	// Lookup must lock the row for the read-modify-write
	assert.Contains(t, upsertLookupSQL, "FOR UPDATE")
}
