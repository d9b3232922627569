package goDocs

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config defines a public type used by goDocs APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`

	Endpoints EndpointConfig `yaml:"endpoints"`
	Refresh   RefreshConfig  `yaml:"refresh"`
	Store     StoreConfig    `yaml:"store"`
	Audit     AuditConfig    `yaml:"audit"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

/*
====================================
ENDPOINT CONFIG
====================================
*/

// EndpointConfig names the session endpoints, relative to BaseURL.
//
// Responses from these two paths never trigger a refresh.
type EndpointConfig struct {
	Refresh string `yaml:"refresh"`
	Logout  string `yaml:"logout"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the single-flight refresh.
type RefreshConfig struct {
	// Timeout bounds one refresh call. It is independent of the triggering
	// caller's context so one cancelled caller cannot fail the whole episode.
	Timeout time.Duration `yaml:"timeout"`
	// ProactiveWindow refreshes a JWT access token before sending a request when
	// its exp falls within the window. Zero disables proactive refresh.
	ProactiveWindow time.Duration `yaml:"proactive_window"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects the token persistence used when no store is injected.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreFile   StoreBackend = "file"
	StoreRedis  StoreBackend = "redis"
)

// StoreConfig describes where the session token is persisted.
type StoreConfig struct {
	Backend     StoreBackend  `yaml:"backend"`
	Key         string        `yaml:"key"`
	FilePath    string        `yaml:"file_path"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
}

// AuditConfig defines a public type used by goDocs APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig defines a public type used by goDocs APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by New when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8080",
		Timeout:   30 * time.Second,
		UserAgent: "goDocs/1",
		Endpoints: EndpointConfig{
			Refresh: "/auth/refresh",
			Logout:  "/auth/logout",
		},
		Refresh: RefreshConfig{
			Timeout:         15 * time.Second,
			ProactiveWindow: 0,
		},
		Store: StoreConfig{
			Backend:     StoreMemory,
			Key:         "token",
			RedisPrefix: "godocs",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	if err := c.validateCore(); err != nil {
		return err
	}
	return c.validateStore()
}

// validateCore checks everything except the backend-specific store settings, which
// do not apply when a store or Redis client is injected through the Builder.
func (c *Config) validateCore() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.New("BaseURL is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("BaseURL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("BaseURL must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("BaseURL must not carry a query or fragment")
	}
	if c.Timeout <= 0 {
		return errors.New("Timeout must be > 0")
	}

	// Endpoints
	if !strings.HasPrefix(c.Endpoints.Refresh, "/") {
		return errors.New("Endpoints Refresh must start with '/'")
	}
	if !strings.HasPrefix(c.Endpoints.Logout, "/") {
		return errors.New("Endpoints Logout must start with '/'")
	}
	if c.Endpoints.Refresh == c.Endpoints.Logout {
		return errors.New("Endpoints Refresh and Logout must differ")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.ProactiveWindow < 0 {
		return errors.New("Refresh ProactiveWindow must be >= 0")
	}

	// Store
	if strings.TrimSpace(c.Store.Key) == "" {
		return errors.New("Store Key is required")
	}
	if c.Store.TTL < 0 {
		return errors.New("Store TTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreMemory:
		// valid
	case StoreFile:
		if strings.TrimSpace(c.Store.FilePath) == "" {
			return errors.New("Store FilePath is required for the file backend")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
	default:
		return errors.New("Store Backend must be memory, file, or redis")
	}
	return nil
}

func (c *Config) isSessionEndpoint(path string) bool {
	return path == c.Endpoints.Refresh || path == c.Endpoints.Logout
}
