package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 18, cfg.Sync.MaxStaleAttempts)
	assert.Equal(t, 2500*time.Millisecond, cfg.Sync.SettleMin)
	assert.Equal(t, 3500*time.Millisecond, cfg.Sync.SettleMax)
	assert.Equal(t, "/graphql", cfg.Sync.GraphQLPath)
	assert.Equal(t, []string{"image", "media", "font"}, cfg.Sync.BlockedResources)
	assert.Equal(t, StoreFile, cfg.Storage.Type)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SYNC_MAX_STALE_ATTEMPTS", "5")
	t.Setenv("SYNC_SETTLE_MIN", "1s")
	t.Setenv("SYNC_SETTLE_MAX", "2s")
	t.Setenv("STORE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/adsync")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Sync.MaxStaleAttempts)
	assert.Equal(t, time.Second, cfg.Sync.SettleMin)
	assert.Equal(t, StorePostgres, cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/adsync", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, ".env", "DATA_DIR=/tmp/adsync-data\nSYNC_END_SELECTOR=div.end\n")
	t.Cleanup(func() {
		os.Unsetenv("DATA_DIR")
		os.Unsetenv("SYNC_END_SELECTOR")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/adsync-data", cfg.Storage.DataDir)
	assert.Equal(t, "div.end", cfg.Sync.EndSelector)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Sync:    SyncConfig{MaxStaleAttempts: 18, SettleMin: time.Second, SettleMax: 2 * time.Second},
			Storage: StorageConfig{Type: StoreFile, DataDir: "data"},
			Logging: LoggingConfig{Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero stale threshold", func(c *Config) { c.Sync.MaxStaleAttempts = 0 }, "SYNC_MAX_STALE_ATTEMPTS"},
		{"settle min above max", func(c *Config) { c.Sync.SettleMin = 3 * time.Second }, "SYNC_SETTLE_MIN"},
		{"unknown store", func(c *Config) { c.Storage.Type = "s3" }, "STORE_TYPE"},
		{"file store without dir", func(c *Config) { c.Storage.DataDir = "" }, "DATA_DIR"},
		{"postgres without database", func(c *Config) { c.Storage.Type = StorePostgres }, "DATABASE_URL"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}
