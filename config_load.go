package goDocs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig. They override values from the YAML file.
const (
	EnvBaseURL         = "GODOCS_BASE_URL"
	EnvTimeout         = "GODOCS_TIMEOUT"
	EnvRefreshTimeout  = "GODOCS_REFRESH_TIMEOUT"
	EnvProactiveWindow = "GODOCS_PROACTIVE_WINDOW"
	EnvStoreBackend    = "GODOCS_STORE_BACKEND"
	EnvStoreFile       = "GODOCS_STORE_FILE"
	EnvRedisAddr       = "GODOCS_REDIS_ADDR"
	EnvMetricsEnabled  = "GODOCS_METRICS_ENABLED"
)

// LoadConfig builds a Config from defaults, an optional YAML file, a .env file in the
// working directory when present, and the GODOCS_* environment variables, in that
// order. An empty path skips the YAML step. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if err := envDuration(EnvTimeout, &cfg.Timeout); err != nil {
		return err
	}
	if err := envDuration(EnvRefreshTimeout, &cfg.Refresh.Timeout); err != nil {
		return err
	}
	if err := envDuration(EnvProactiveWindow, &cfg.Refresh.ProactiveWindow); err != nil {
		return err
	}
	if v := os.Getenv(EnvStoreBackend); v != "" {
		cfg.Store.Backend = StoreBackend(v)
	}
	if v := os.Getenv(EnvStoreFile); v != "" {
		cfg.Store.FilePath = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMetricsEnabled, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
