package postgres

import (
	"context"
	"fmt"
)

// enumDDL creates the enum types; duplicate_object means a previous run
// already created them.
const enumDDL = `
DO $$ BEGIN
	CREATE TYPE product_status AS ENUM ('draft', 'active', 'archived');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE match_status AS ENUM ('unmatched', 'auto_matched', 'potential_match', 'verified_match');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;

DO $$ BEGIN
	CREATE TYPE review_status AS ENUM ('pending', 'approved', 'rejected', 'expired', 'needs_category');
EXCEPTION WHEN duplicate_object THEN NULL; END $$;
`

const tableDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS suppliers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	source_type TEXT NOT NULL CHECK (source_type IN ('google_sheets', 'csv', 'excel')),
	metadata    JSONB NOT NULL DEFAULT '{}',
	last_sync   TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (name, source_type)
);

CREATE TABLE IF NOT EXISTS categories (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	parent_id    TEXT REFERENCES categories(id) ON DELETE CASCADE,
	supplier_id  TEXT REFERENCES suppliers(id) ON DELETE SET NULL,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_categories_name_parent
	ON categories (name, COALESCE(parent_id, ''));

CREATE TABLE IF NOT EXISTS products (
	id           TEXT PRIMARY KEY,
	internal_sku TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	category_id  TEXT REFERENCES categories(id) ON DELETE SET NULL,
	status       product_status NOT NULL DEFAULT 'draft',
	min_price    NUMERIC(12,2) CHECK (min_price IS NULL OR min_price >= 0),
	availability BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_products_status ON products (status);

CREATE TABLE IF NOT EXISTS supplier_items (
	id               TEXT PRIMARY KEY,
	supplier_id      TEXT NOT NULL REFERENCES suppliers(id) ON DELETE CASCADE,
	product_id       TEXT REFERENCES products(id) ON DELETE SET NULL,
	supplier_sku     TEXT NOT NULL,
	name             TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	current_price    NUMERIC(12,2) NOT NULL CHECK (current_price >= 0),
	characteristics  JSONB NOT NULL DEFAULT '{}',
	match_status     match_status NOT NULL DEFAULT 'unmatched',
	match_score      DOUBLE PRECISION CHECK (match_score IS NULL OR (match_score >= 0 AND match_score <= 100)),
	match_candidates JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ,
	UNIQUE (supplier_id, supplier_sku)
);

CREATE INDEX IF NOT EXISTS idx_supplier_items_product ON supplier_items (product_id);
CREATE INDEX IF NOT EXISTS idx_supplier_items_characteristics ON supplier_items USING GIN (characteristics);
CREATE INDEX IF NOT EXISTS idx_supplier_items_unmatched
	ON supplier_items (created_at) WHERE match_status = 'unmatched';

CREATE TABLE IF NOT EXISTS price_history (
	id               TEXT PRIMARY KEY,
	supplier_item_id TEXT NOT NULL REFERENCES supplier_items(id) ON DELETE CASCADE,
	price            NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	recorded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_price_history_item
	ON price_history (supplier_item_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS product_embeddings (
	id               TEXT PRIMARY KEY,
	supplier_item_id TEXT NOT NULL REFERENCES supplier_items(id) ON DELETE CASCADE,
	model_name       TEXT NOT NULL,
	embedding        vector(%d) NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (supplier_item_id, model_name)
);

CREATE TABLE IF NOT EXISTS match_review_queue (
	id                 TEXT PRIMARY KEY,
	supplier_item_id   TEXT NOT NULL UNIQUE REFERENCES supplier_items(id) ON DELETE CASCADE,
	candidate_products JSONB NOT NULL DEFAULT '[]',
	status             review_status NOT NULL DEFAULT 'pending',
	reviewed_by        TEXT,
	reviewed_at        TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_pending
	ON match_review_queue (expires_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS parsing_logs (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL,
	supplier_id TEXT,
	error_type  TEXT NOT NULL,
	message     TEXT NOT NULL,
	row_number  INTEGER,
	row_data    JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_parsing_logs_task ON parsing_logs (task_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_parsing_logs_created ON parsing_logs (created_at DESC);
`

// ivfflatDDL builds the approximate nearest-neighbor index. Kept separate
// because IVFFlat index creation needs rows to pick centroids from and is
// harmless to re-run.
const ivfflatDDL = `
CREATE INDEX IF NOT EXISTS idx_product_embeddings_ann
	ON product_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

// EnsureSchema applies the schema idempotently at startup. The embedding
// column dimension is fixed at creation; changing the embedding model's
// dimensionality requires a migration.
func (d *DB) EnsureSchema(ctx context.Context, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions %d", embeddingDimensions)
	}

	if _, err := d.pool.Exec(ctx, enumDDL); err != nil {
		return fmt.Errorf("failed to create enum types: %w", err)
	}
	if _, err := d.pool.Exec(ctx, fmt.Sprintf(tableDDL, embeddingDimensions)); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := d.pool.Exec(ctx, ivfflatDDL); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	d.logger.Info().Int("embedding_dims", embeddingDimensions).Msg("Database schema verified")
	return nil
}
