package database

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

// RecordStore is the Postgres implementation of storage.Store.
type RecordStore struct {
	db *DB
}

func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// UpsertTx writes rec inside tx and reports whether the row was inserted
// rather than updated.
func (s *RecordStore) UpsertTx(ctx context.Context, tx pgx.Tx, rec models.Record) (bool, error) {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return false, errors.Wrapf(err, "failed to encode record %s", rec.ID)
	}

	query := `
		INSERT INTO records (collection_id, id, attributes, first_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection_id, id) DO UPDATE
			SET attributes = EXCLUDED.attributes, updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)`

	var inserted bool
	err = tx.QueryRow(ctx, query, rec.CollectionID, rec.ID, attrs, time.Now()).Scan(&inserted)
	if err != nil {
		return false, errors.Wrapf(err, "failed to upsert record %s", rec.ID)
	}

	return inserted, nil
}

func (s *RecordStore) Write(ctx context.Context, rec models.Record) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := s.UpsertTx(ctx, tx, rec)
		return err
	})
}

func (s *RecordStore) LoadKnownIDs(ctx context.Context, collectionID string) (map[string]struct{}, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT id FROM records WHERE collection_id = $1`, collectionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load known ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan id")
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return ids, nil
}

func (s *RecordStore) WriteMeta(ctx context.Context, meta models.CollectionMeta) error {
	query := `
		INSERT INTO collections (collection_id, last_synced, record_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection_id) DO UPDATE
			SET last_synced = EXCLUDED.last_synced, record_count = EXCLUDED.record_count`

	if _, err := s.db.pool.Exec(ctx, query, meta.CollectionID, meta.LastSynced, meta.RecordCount); err != nil {
		return errors.Wrap(err, "failed to write collection meta")
	}
	return nil
}

func (s *RecordStore) LoadMeta(ctx context.Context, collectionID string) (*models.CollectionMeta, error) {
	meta := &models.CollectionMeta{}
	err := s.db.pool.QueryRow(ctx,
		`SELECT collection_id, last_synced, record_count FROM collections WHERE collection_id = $1`,
		collectionID,
	).Scan(&meta.CollectionID, &meta.LastSynced, &meta.RecordCount)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load collection meta")
	}

	meta.LastSynced = meta.LastSynced.UTC()
	return meta, nil
}

func (s *RecordStore) ListRecords(ctx context.Context, collectionID string) ([]models.Record, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT id, attributes FROM records WHERE collection_id = $1 ORDER BY id`, collectionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var attrs map[string]any
		if err := dec.Decode(&attrs); err != nil {
			return nil, errors.Wrapf(err, "failed to decode record %s", id)
		}

		records = append(records, models.Record{
			ID:           id,
			CollectionID: collectionID,
			Attributes:   attrs,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return records, nil
}
