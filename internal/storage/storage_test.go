package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func testRecord(id string) models.Record {
	return models.Record{
		ID:           id,
		CollectionID: "282592881929497",
		Attributes: map[string]any{
			"ad_archive_id": id,
			"page_id":       "282592881929497",
			"snapshot":      map[string]any{"title": "ad " + id},
		},
	}
}

func TestFileStore_WriteAndLoadKnownIDs(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, testRecord("111")))
	require.NoError(t, fs.Write(ctx, testRecord("222")))
	require.NoError(t, fs.Write(ctx, testRecord("111")))

	ids, err := fs.LoadKnownIDs(ctx, "282592881929497")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"111": {}, "222": {}}, ids)

	path := filepath.Join(fs.Root(), "282592881929497", "records", "111.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var attrs map[string]any
	require.NoError(t, json.Unmarshal(data, &attrs))
	assert.Equal(t, "111", attrs["ad_archive_id"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")
}

func TestFileStore_LoadKnownIDs_UnknownCollection(t *testing.T) {
	fs := newTestStore(t)

	ids, err := fs.LoadKnownIDs(context.Background(), "999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_Meta(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	meta, err := fs.LoadMeta(ctx, "282592881929497")
	require.NoError(t, err)
	assert.Nil(t, meta)

	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, fs.WriteMeta(ctx, models.CollectionMeta{
		CollectionID: "282592881929497",
		LastSynced:   synced,
		RecordCount:  42,
	}))

	meta, err = fs.LoadMeta(ctx, "282592881929497")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 42, meta.RecordCount)
	assert.True(t, synced.Equal(meta.LastSynced))
}

func TestFileStore_ListRecords(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, testRecord("222")))
	require.NoError(t, fs.Write(ctx, testRecord("111")))

	records, err := fs.ListRecords(ctx, "282592881929497")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "111", records[0].ID)
	assert.Equal(t, "222", records[1].ID)
	assert.Equal(t, "282592881929497", records[0].CollectionID)

	snapshot, ok := records[0].Attributes["snapshot"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ad 111", snapshot["title"])
}

func TestFileStore_ListRecords_KeepsNumbersExact(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	rec := models.Record{
		ID:           "1",
		CollectionID: "c",
		Attributes:   map[string]any{"ad_archive_id": json.Number("1234567890123456789")},
	}
	require.NoError(t, fs.Write(ctx, rec))

	records, err := fs.ListRecords(ctx, "c")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("1234567890123456789"), records[0].Attributes["ad_archive_id"])
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  models.Record
	}{
		{"slash in record id", models.Record{ID: "../x", CollectionID: "c"}},
		{"backslash in record id", models.Record{ID: `a\b`, CollectionID: "c"}},
		{"empty record id", models.Record{ID: "", CollectionID: "c"}},
		{"dot-dot collection", models.Record{ID: "1", CollectionID: ".."}},
		{"nested collection", models.Record{ID: "1", CollectionID: "a/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.Write(ctx, tt.rec)
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}

	_, err := fs.LoadKnownIDs(ctx, "../etc")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestFileStore_CanceledContext(t *testing.T) {
	fs := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, fs.Write(ctx, testRecord("1")), context.Canceled)
}

func TestNewFileStore_RequiresRoot(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
