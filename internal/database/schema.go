package database

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Schema is idempotent and applied on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS collections (
	collection_id TEXT PRIMARY KEY,
	last_synced   TIMESTAMPTZ NOT NULL,
	record_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS records (
	collection_id TEXT NOT NULL,
	id            TEXT NOT NULL,
	attributes    JSONB NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection_id, id)
);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL CHECK (aggregate_type <> ''),
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL CHECK (event_type <> ''),
	payload        JSONB NOT NULL,
	target_stream  TEXT NOT NULL,
	status         TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
	ON outbox_event (status, next_retry_at, created_at);

CREATE TABLE IF NOT EXISTS sync_runs (
	id            TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	mode          TEXT NOT NULL,
	max_new       INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	stats         JSONB,
	error_message TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);
`

func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
