package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Sync     SyncConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type BrowserConfig struct {
	Headless       bool          `env:"BROWSER_HEADLESS" envDefault:"false"`
	Timeout        time.Duration `env:"BROWSER_TIMEOUT" envDefault:"60s"`
	ViewportWidth  int           `env:"BROWSER_VIEWPORT_WIDTH" envDefault:"1280"`
	ViewportHeight int           `env:"BROWSER_VIEWPORT_HEIGHT" envDefault:"900"`
	Locale         string        `env:"BROWSER_LOCALE" envDefault:"en-US"`
	TimezoneID     string        `env:"BROWSER_TIMEZONE" envDefault:"UTC"`
	UserAgent      string        `env:"BROWSER_USER_AGENT"`
	UserDataDir    string        `env:"BROWSER_USER_DATA_DIR"`
	ProxyServer    string        `env:"BROWSER_PROXY"`
}

type SyncConfig struct {
	MaxStaleAttempts int           `env:"SYNC_MAX_STALE_ATTEMPTS" envDefault:"18"`
	SettleMin        time.Duration `env:"SYNC_SETTLE_MIN" envDefault:"2500ms"`
	SettleMax        time.Duration `env:"SYNC_SETTLE_MAX" envDefault:"3500ms"`
	GraphQLPath      string        `env:"SYNC_GRAPHQL_PATH" envDefault:"/graphql"`
	BaseURL          string        `env:"SYNC_BASE_URL" envDefault:"https://www.facebook.com/ads/library/"`
	HomeURL          string        `env:"SYNC_HOME_URL" envDefault:"https://www.facebook.com/"`
	UISelector       string        `env:"SYNC_UI_SELECTOR" envDefault:"div.x78zum5"`
	EndSelector      string        `env:"SYNC_END_SELECTOR"`
	BlockedResources []string      `env:"SYNC_BLOCKED_RESOURCES" envDefault:"image,media,font" envSeparator:","`
}

type StorageConfig struct {
	Type    string `env:"STORE_TYPE" envDefault:"file"`
	DataDir string `env:"DATA_DIR" envDefault:"data"`
}

type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"adlibrary"`
	SSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

type RedisConfig struct {
	// Addr empty disables the outbox relay.
	Addr         string        `env:"REDIS_ADDR"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB" envDefault:"0"`
	PollInterval time.Duration `env:"RELAY_POLL_INTERVAL" envDefault:"5s"`
	BatchSize    int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Sync.MaxStaleAttempts < 1 {
		return errors.New("SYNC_MAX_STALE_ATTEMPTS must be at least 1")
	}

	if c.Sync.SettleMin > c.Sync.SettleMax {
		return errors.New("SYNC_SETTLE_MIN cannot be greater than SYNC_SETTLE_MAX")
	}

	switch c.Storage.Type {
	case StoreFile:
		if c.Storage.DataDir == "" {
			return errors.New("DATA_DIR is required for the file store")
		}
	case StorePostgres:
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Name == "") {
			return errors.New("DATABASE_URL or DB_HOST and DB_NAME are required for the postgres store")
		}
	default:
		return errors.Newf("unknown STORE_TYPE %q", c.Storage.Type)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.Newf("unknown LOG_FORMAT %q", c.Logging.Format)
	}

	return nil
}
