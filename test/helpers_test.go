//go:build integration
// +build integration

package test

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	goDocs "github.com/MrEthical07/goDocs"
	"github.com/MrEthical07/goDocs/documents"
	"github.com/MrEthical07/goDocs/internal/fakeapi"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend the suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns miniredis plus any real deployments named by REDIS_ADDR or
// REDIS_CLUSTER_ADDRS.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				pingOrSkip(t, rdb)
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				pingOrSkip(t, rdb)
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		})
	}

	return modes
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("cannot connect to Redis: %v", err)
	}
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func newFakeAPI(t *testing.T, cfg fakeapi.Config) (*fakeapi.Server, string) {
	t.Helper()
	api := fakeapi.New(cfg)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

// newRedisClient builds a client whose token lives in rdb under prefix.
func newRedisClient(t *testing.T, baseURL string, rdb redis.UniversalClient, prefix string) (*goDocs.Client, *documents.Service) {
	t.Helper()

	cfg := goDocs.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Metrics.Enabled = true
	cfg.Store.Backend = goDocs.StoreRedis
	cfg.Store.RedisPrefix = prefix
	cfg.Store.TTL = time.Hour

	client, err := goDocs.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, documents.NewService(client, nil)
}
