// Command godocs-loadtest drives many concurrent callers through one goDocs client
// while the access token keeps expiring, and reports how many refresh calls each
// burst cost. A healthy client spends exactly one refresh per expiry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goDocs "github.com/MrEthical07/goDocs"
	"github.com/MrEthical07/goDocs/documents"
	"github.com/MrEthical07/goDocs/internal/fakeapi"
	"github.com/MrEthical07/goDocs/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		callers   = flag.Int("callers", 64, "concurrent callers per round")
		rounds    = flag.Int("rounds", 20, "number of expiry rounds")
		baseURL   = flag.String("base-url", "", "API base URL; if empty an in-process fake API is used")
		email     = flag.String("email", fakeapi.DemoEmail, "login email")
		password  = flag.String("password", fakeapi.DemoPassword, "login password")
		storeKind = flag.String("store", "memory", "token store: memory, file, or redis")
		redisAddr = flag.String("redis-addr", "", "redis address for -store=redis; if empty, REDIS_ADDR env or miniredis is used")
		verbose   = flag.Bool("v", false, "log client activity")
		promOut   = flag.Bool("prometheus", false, "print the client's metrics in Prometheus text format at the end")
	)
	flag.Parse()

	if *callers <= 0 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "callers and rounds must be > 0")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	var api *fakeapi.Server
	if *baseURL == "" {
		api = fakeapi.New(fakeapi.Config{})
		url, stop, err := serve(api)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start fake api: %v\n", err)
			os.Exit(1)
		}
		defer stop()
		*baseURL = url
		fmt.Printf("using in-process api at %s\n", url)
	}

	builder := goDocs.New().
		WithBaseURL(*baseURL).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)

	cleanup, err := configureStore(builder, *storeKind, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(2)
	}
	defer cleanup()

	client, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	svc := documents.NewService(client, nil)
	ctx := context.Background()

	user, err := svc.Login(ctx, *email, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("logged in as %s, %d callers x %d rounds\n", user.Email, *callers, *rounds)

	var (
		all        []time.Duration
		failures   int64
		violations int
	)
	start := time.Now()
	for r := 0; r < *rounds; r++ {
		if api != nil {
			api.ExpireAccessTokens()
		} else if err := client.SetToken(ctx, "expired"); err != nil {
			fmt.Fprintf(os.Stderr, "invalidate token: %v\n", err)
			os.Exit(1)
		}

		before := client.MetricsSnapshot().Counters[goDocs.MetricRefreshStarted]
		samples, failed := runRound(ctx, svc, *callers)
		refreshes := client.MetricsSnapshot().Counters[goDocs.MetricRefreshStarted] - before

		all = append(all, samples...)
		failures += failed
		if refreshes != 1 {
			violations++
		}
		if *verbose {
			fmt.Printf("round %d: refreshes=%d failures=%d\n", r+1, refreshes, failed)
		}
	}
	stats := computeStats(time.Since(start), all, failures)

	if err := client.Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logout: %v\n", err)
	}

	snap := client.MetricsSnapshot().Counters
	fmt.Println("---- results ----")
	printStats("feed", stats)
	fmt.Printf("refresh: started=%d joined=%d success=%d failure=%d replays=%d\n",
		snap[goDocs.MetricRefreshStarted],
		snap[goDocs.MetricRefreshJoined],
		snap[goDocs.MetricRefreshSuccess],
		snap[goDocs.MetricRefreshFailure],
		snap[goDocs.MetricRequestReplayed],
	)
	if api != nil {
		fmt.Printf("server: refresh calls=%d logout calls=%d\n", api.RefreshCalls(), api.LogoutCalls())
	}
	if *promOut {
		fmt.Println("---- prometheus ----")
		fmt.Print(prometheus.NewPrometheusExporter(client).RenderContext(ctx))
	}
	if violations > 0 || failures > 0 {
		fmt.Printf("FAIL: %d rounds did not cost exactly one refresh, %d requests failed\n", violations, failures)
		os.Exit(1)
	}
	fmt.Println("OK: one refresh per expiry")
}

func runRound(ctx context.Context, svc *documents.Service, callers int) ([]time.Duration, int64) {
	var (
		mu       sync.Mutex
		samples  = make([]time.Duration, 0, callers)
		failures atomic.Int64
		start    = make(chan struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			<-start
			t0 := time.Now()
			_, err := svc.Feed(gctx, documents.FeedQuery{Limit: 5})
			d := time.Since(t0)
			if err != nil {
				failures.Add(1)
			}
			mu.Lock()
			samples = append(samples, d)
			mu.Unlock()
			return nil
		})
	}
	close(start)
	_ = g.Wait()
	return samples, failures.Load()
}

func serve(handler http.Handler) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "fake api: %v\n", err)
		}
	}()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String(), stop, nil
}

func configureStore(b *goDocs.Builder, kind, redisAddr string) (func(), error) {
	cfg := goDocs.DefaultConfig()
	switch goDocs.StoreBackend(kind) {
	case goDocs.StoreMemory:
		return func() {}, nil
	case goDocs.StoreFile:
		dir, err := os.MkdirTemp("", "godocs-loadtest")
		if err != nil {
			return nil, err
		}
		cfg.Store.Backend = goDocs.StoreFile
		cfg.Store.FilePath = filepath.Join(dir, "session.json")
		b.WithStoreConfig(cfg.Store)
		return func() { _ = os.RemoveAll(dir) }, nil
	case goDocs.StoreRedis:
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cfg.Store.Backend = goDocs.StoreRedis
		cfg.Store.RedisPrefix = "godocs-loadtest"
		b.WithStoreConfig(cfg.Store)
		b.WithRedis(rdb)
		return func() {
			_ = rdb.Close()
			if mr != nil {
				mr.Close()
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
