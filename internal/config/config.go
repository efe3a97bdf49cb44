package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"redraft"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"redraft"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`

	EnableAPI        bool   `envconfig:"ENABLE_API" default:"true"`
	EnableDispatcher bool   `envconfig:"ENABLE_DISPATCHER" default:"true"`
	MigrationPath    string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`

	// Chunking
	MaxChunkWords      int `envconfig:"MAX_CHUNK_WORDS" default:"2000"`
	MinChunkWords      int `envconfig:"MIN_CHUNK_WORDS" default:"200"`
	ChunkLargeDocWords int `envconfig:"CHUNK_LARGE_DOC_WORDS" default:"3000"`

	// Retry
	MaxRetries    int `envconfig:"MAX_RETRIES" default:"3"`
	BaseBackoffMs int `envconfig:"BASE_BACKOFF_MS" default:"2000"`
	MaxBackoffMs  int `envconfig:"MAX_BACKOFF_MS" default:"60000"`

	// Provider pacing
	ProviderRequestsPerWindow int `envconfig:"PROVIDER_REQUESTS_PER_WINDOW" default:"10"`
	WindowMs                  int `envconfig:"WINDOW_MS" default:"60000"`
	MinRequestSpacingMs       int `envconfig:"MIN_REQUEST_SPACING_MS" default:"15000"`
	BudgetMaxWaitMs           int `envconfig:"BUDGET_MAX_WAIT_MS" default:"300000"`
	ProviderTimeoutMs         int `envconfig:"PROVIDER_TIMEOUT_MS" default:"120000"`

	// Server
	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.MaxChunkWords <= 0 {
		return fmt.Errorf("%w: MAX_CHUNK_WORDS must be positive", ErrMissingRequired)
	}
	if c.MinChunkWords < 0 || c.MinChunkWords > c.MaxChunkWords {
		return fmt.Errorf("%w: MIN_CHUNK_WORDS must be between 0 and MAX_CHUNK_WORDS", ErrMissingRequired)
	}
	if c.ProviderRequestsPerWindow <= 0 {
		return fmt.Errorf("%w: PROVIDER_REQUESTS_PER_WINDOW must be positive", ErrMissingRequired)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: MAX_RETRIES must not be negative", ErrMissingRequired)
	}
	return nil
}
