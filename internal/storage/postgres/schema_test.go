package postgres

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaCarriesContractConstraints(t *testing.T) {
	ddl := fmt.Sprintf(tableDDL, 768)

	assert.Contains(t, ddl, "vector(768)")
	assert.Contains(t, ddl, "UNIQUE (supplier_id, supplier_sku)")
	assert.Contains(t, ddl, "UNIQUE (supplier_item_id, model_name)")
	assert.Contains(t, ddl, "UNIQUE (name, source_type)")
	assert.Contains(t, ddl, "UNIQUE REFERENCES supplier_items(id)")
	assert.Contains(t, ddl, "CHECK (current_price >= 0)")
	assert.Contains(t, ddl, "match_score >= 0 AND match_score <= 100")
	assert.Contains(t, ddl, "USING GIN (characteristics)")

	// The supplier SKU is the sole per-supplier identity; a unique index
	// on normalized_name would collapse price variants the deduplicator
	// deliberately keeps apart.
	assert.NotContains(t, ddl, "UNIQUE (supplier_id, normalized_name)")

	// Diagnostics use the reconciled schema: no severity column
	assert.NotContains(t, strings.ToLower(ddl), "severity")
}

func TestSchemaDeleteActionsFollowOwnership(t *testing.T) {
	ddl := fmt.Sprintf(tableDDL, 768)

	// Supplier owns its items; items own history, embeddings and reviews
	assert.Contains(t, ddl, "REFERENCES suppliers(id) ON DELETE CASCADE")
	assert.Contains(t, ddl, "supplier_item_id TEXT NOT NULL REFERENCES supplier_items(id) ON DELETE CASCADE")
	assert.Contains(t, ddl, "UNIQUE REFERENCES supplier_items(id) ON DELETE CASCADE")
	assert.Contains(t, ddl, "REFERENCES categories(id) ON DELETE CASCADE")

	// Products and categories never own items: unlink, never delete
	assert.Contains(t, ddl, "REFERENCES products(id) ON DELETE SET NULL")
	assert.Contains(t, ddl, "category_id  TEXT REFERENCES categories(id) ON DELETE SET NULL")
	assert.Contains(t, ddl, "REFERENCES suppliers(id) ON DELETE SET NULL")

	// No bare references remain
	assert.NotContains(t, ddl, "REFERENCES suppliers(id),")
	assert.NotContains(t, ddl, "REFERENCES products(id),")
	assert.NotContains(t, ddl, "REFERENCES supplier_items(id),")
	assert.NotContains(t, ddl, "REFERENCES categories(id),")
}

func TestSchemaVectorIndexUsesCosineOps(t *testing.T) {
	assert.Contains(t, ivfflatDDL, "ivfflat")
	assert.Contains(t, ivfflatDDL, "vector_cosine_ops")
}
