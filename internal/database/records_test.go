package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "url wins",
			cfg:  Config{URL: "postgres://u@db/x", Host: "ignored"},
			want: "postgres://u@db/x",
		},
		{
			name: "built from fields",
			cfg:  Config{Host: "localhost", Port: 5432, User: "postgres", Password: "pw", Database: "adsync"},
			want: "postgres://postgres:pw@localhost:5432/adsync?sslmode=disable",
		},
		{
			name: "explicit ssl mode",
			cfg:  Config{Host: "h", Port: 1, User: "u", Database: "d", SSLMode: "require"},
			want: "postgres://u:@h:1/d?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestRecordStore(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	store := NewRecordStore(db)
	collectionID := uuid.NewString()

	rec := models.Record{
		ID:           "1234567890123456789",
		CollectionID: collectionID,
		Attributes: map[string]any{
			"ad_archive_id": json.Number("1234567890123456789"),
			"page_id":       collectionID,
		},
	}

	t.Run("upsert reports insert then update", func(t *testing.T) {
		var first, second bool
		require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
			var err error
			first, err = store.UpsertTx(ctx, tx, rec)
			return err
		}))
		require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
			var err error
			second, err = store.UpsertTx(ctx, tx, rec)
			return err
		}))

		assert.True(t, first)
		assert.False(t, second)
	})

	t.Run("known ids", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, models.Record{ID: "2", CollectionID: collectionID, Attributes: map[string]any{}}))

		ids, err := store.LoadKnownIDs(ctx, collectionID)
		require.NoError(t, err)
		assert.Equal(t, map[string]struct{}{"1234567890123456789": {}, "2": {}}, ids)
	})

	t.Run("records keep exact numbers", func(t *testing.T) {
		records, err := store.ListRecords(ctx, collectionID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, json.Number("1234567890123456789"), records[0].Attributes["ad_archive_id"])
	})

	t.Run("meta round trip", func(t *testing.T) {
		meta, err := store.LoadMeta(ctx, collectionID)
		require.NoError(t, err)
		assert.Nil(t, meta)

		synced := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, store.WriteMeta(ctx, models.CollectionMeta{
			CollectionID: collectionID,
			LastSynced:   synced,
			RecordCount:  2,
		}))

		meta, err = store.LoadMeta(ctx, collectionID)
		require.NoError(t, err)
		require.NotNil(t, meta)
		assert.Equal(t, 2, meta.RecordCount)
		assert.True(t, synced.Equal(meta.LastSynced))
	})
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)
	run := models.Run{
		ID:           uuid.NewString(),
		CollectionID: "282592881929497",
		Mode:         models.ModeIncremental,
		Status:       models.RunRunning,
		StartedAt:    time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, repo.Save(ctx, run))

	finished := run.StartedAt.Add(time.Minute)
	run.Status = models.RunCompleted
	run.FinishedAt = &finished
	run.Stats = &models.RunStats{TotalNew: 3, TotalSeen: 10, StopReason: models.StopStalled}
	require.NoError(t, repo.Save(ctx, run))

	runs, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, models.RunCompleted, runs[0].Status)
	require.NotNil(t, runs[0].Stats)
	assert.Equal(t, 3, runs[0].Stats.TotalNew)
	assert.Equal(t, models.StopStalled, runs[0].Stats.StopReason)
}
