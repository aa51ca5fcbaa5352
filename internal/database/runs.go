package database

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

// RunRepository keeps a history of sync runs.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save inserts or updates the run by id.
func (r *RunRepository) Save(ctx context.Context, run models.Run) error {
	var stats []byte
	if run.Stats != nil {
		var err error
		if stats, err = json.Marshal(run.Stats); err != nil {
			return errors.Wrap(err, "failed to encode run stats")
		}
	}

	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}

	query := `
		INSERT INTO sync_runs (
			id, collection_id, mode, max_new, status,
			stats, error_message, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = EXCLUDED.collection_id,
			status = EXCLUDED.status,
			stats = EXCLUDED.stats,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at`

	_, err := r.db.pool.Exec(ctx, query,
		run.ID, run.CollectionID, string(run.Mode), run.MaxNew, string(run.Status),
		stats, errMsg, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save run %s", run.ID)
	}

	return nil
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.Run, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, collection_id, mode, max_new, status,
			stats, error_message, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var (
			run    models.Run
			mode   string
			status string
			stats  []byte
			errMsg *string
		)
		if err := rows.Scan(
			&run.ID, &run.CollectionID, &mode, &run.MaxNew, &status,
			&stats, &errMsg, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}

		run.Mode = models.SyncMode(mode)
		run.Status = models.RunStatus(status)
		if errMsg != nil {
			run.Error = *errMsg
		}
		if len(stats) > 0 {
			run.Stats = &models.RunStats{}
			if err := json.Unmarshal(stats, run.Stats); err != nil {
				return nil, errors.Wrapf(err, "failed to decode stats of run %s", run.ID)
			}
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return runs, nil
}
