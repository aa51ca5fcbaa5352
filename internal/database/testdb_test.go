package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB connects to ADSYNC_TEST_DATABASE_URL and applies the schema.
// Tests are skipped when it is not set.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("ADSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ADSYNC_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(ctx))

	return db
}
