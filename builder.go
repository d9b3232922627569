package goDocs

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/MrEthical07/goDocs/tokenstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder defines a public type used by goDocs APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	httpClient *http.Client
	store      tokenstore.Store
	redis      redis.UniversalClient
	logger     *zap.Logger
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets Config.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithHTTPClient supplies the transport. The client's cookie jar, if any, carries the
// refresh credential; Build installs a jar only on the default client it creates.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithStoreConfig replaces Config.Store and leaves the rest of the configuration alone.
func (b *Builder) WithStoreConfig(store StoreConfig) *Builder {
	b.config.Store = store
	return b
}

// WithTokenStore injects a token store and bypasses Config.Store.Backend.
func (b *Builder) WithTokenStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithRedis supplies the Redis client used by the redis backend. The caller keeps
// ownership of it; Client.Close does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables audit dispatch.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now, for proactive refresh decisions in tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Client. A Builder can only
// be built once.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.validateCore(); err != nil {
		return nil, err
	}

	c := &Client{
		config:  cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  b.logger,
		now:     b.now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}

	store, closers, err := b.buildStore(cfg)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closers = closers

	c.http = b.httpClient
	if c.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("goDocs: cookie jar: %w", err)
		}
		c.http = &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		}
	}

	if cfg.Metrics.Enabled {
		c.metrics = NewMetrics(cfg.Metrics)
	}
	c.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	b.built = true
	return c, nil
}

func (b *Builder) buildStore(cfg Config) (tokenstore.Store, []func() error, error) {
	if b.store != nil {
		return b.store, nil, nil
	}
	if cfg.Store.Backend == StoreRedis && b.redis != nil {
		return tokenstore.NewRedis(b.redis, cfg.Store.RedisPrefix, cfg.Store.Key, cfg.Store.TTL), nil, nil
	}
	if err := cfg.validateStore(); err != nil {
		return nil, nil, err
	}

	switch cfg.Store.Backend {
	case StoreFile:
		return tokenstore.NewFile(cfg.Store.FilePath, cfg.Store.Key), nil, nil
	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		store := tokenstore.NewRedis(rdb, cfg.Store.RedisPrefix, cfg.Store.Key, cfg.Store.TTL)
		return store, []func() error{rdb.Close}, nil
	default:
		return &tokenstore.Memory{}, nil, nil
	}
}
