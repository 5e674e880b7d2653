package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/infra/storage"
	"github.com/vietddude/metalsync/internal/syncing/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = storage.BackendMemory
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "metal_prices:"
	}

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.metalpriceapi.com/v1"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 10 * time.Second
	}
	if c.Provider.BaseCurrency == "" {
		c.Provider.BaseCurrency = "USD"
	}
	if len(c.Provider.Symbols) == 0 {
		c.Provider.Symbols = append([]domain.Symbol(nil), domain.DefaultSymbols...)
	}

	if c.Retry.MaxAttempts == nil {
		n := 3
		c.Retry.MaxAttempts = &n
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = time.Second
	}

	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = 10 * time.Minute
	}

	if c.Scheduler.BaseFrequency == 0 {
		c.Scheduler.BaseFrequency = time.Minute
	}
	if c.Scheduler.MaxFrequency == 0 {
		c.Scheduler.MaxFrequency = 5 * time.Minute
	}
	if c.Scheduler.InteractionWindow == 0 {
		c.Scheduler.InteractionWindow = 2 * time.Minute
	}
	if c.Scheduler.SupervisorPeriod == 0 {
		c.Scheduler.SupervisorPeriod = 30 * time.Second
	}
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("storage backend redis requires redis.url")
		}
	case storage.BackendPostgres:
		if c.Database.URL == "" {
			return errors.New("storage backend postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if *c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0, got %d", *c.Retry.MaxAttempts)
	}
	if *c.Retry.MaxAttempts > retry.MaxAttemptsLimit {
		return fmt.Errorf("retry.max_attempts must be <= %d, got %d", retry.MaxAttemptsLimit, *c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0, got %s", c.Retry.BaseDelay)
	}
	if c.Scheduler.MaxFrequency < c.Scheduler.BaseFrequency {
		return fmt.Errorf("scheduler.max_frequency %s is below base_frequency %s",
			c.Scheduler.MaxFrequency, c.Scheduler.BaseFrequency)
	}
	return nil
}
