package config

import (
	"errors"
	"time"

	"github.com/vietddude/metalsync/internal/core/domain"
	redisclient "github.com/vietddude/metalsync/internal/infra/redis"
	"github.com/vietddude/metalsync/internal/infra/storage/postgres"
)

// ErrConfigNotFound is returned when the config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Storage   StorageConfig      `yaml:"storage"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Provider  ProviderConfig     `yaml:"provider"`
	Retry     RetryConfig        `yaml:"retry"`
	Cache     CacheConfig        `yaml:"cache"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StorageConfig selects the cache backend.
type StorageConfig struct {
	Backend   string `yaml:"backend"` // memory, redis, postgres
	KeyPrefix string `yaml:"key_prefix"`
}

// ProviderConfig holds settings for the price API.
type ProviderConfig struct {
	BaseURL      string          `yaml:"base_url"`
	APIKey       string          `yaml:"api_key"`
	Timeout      time.Duration   `yaml:"timeout"`
	BaseCurrency string          `yaml:"base_currency"`
	ProbeURL     string          `yaml:"probe_url"` // empty disables the connectivity check
	PriceChange  bool            `yaml:"price_change"`
	Symbols      []domain.Symbol `yaml:"symbols"`
}

// RetryConfig holds fetch retry settings.
type RetryConfig struct {
	MaxAttempts *int          `yaml:"max_attempts"` // nil = default, 0 = single attempt
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// SchedulerConfig holds refresh cadence settings.
type SchedulerConfig struct {
	BaseFrequency     time.Duration `yaml:"base_frequency"`
	MaxFrequency      time.Duration `yaml:"max_frequency"`
	InteractionWindow time.Duration `yaml:"interaction_window"`
	SupervisorPeriod  time.Duration `yaml:"supervisor_period"`
}
