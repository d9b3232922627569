package goDocs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goDocs/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testBackend accepts exactly one bearer token at a time and hands out a configured
// replacement from its refresh endpoint.
type testBackend struct {
	t *testing.T

	mu           sync.Mutex
	valid        string
	refreshTo    string
	refreshCode  int
	logoutCode   int
	rejectAll    bool
	seen         map[string][]string
	onRequest    func(path, token string)
	unauthorized int

	// gate, when set, holds refresh responses until released.
	gate        chan struct{}
	releaseOnce sync.Once
	releaseAt   int

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

func newTestBackend(t *testing.T, valid, refreshTo string) (*testBackend, *httptest.Server) {
	t.Helper()

	b := &testBackend{
		t:         t,
		valid:     valid,
		refreshTo: refreshTo,
		seen:      make(map[string][]string),
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return b, srv
}

// holdRefreshUntil makes refresh wait until n requests have been rejected with 401,
// so n concurrent callers are guaranteed to queue behind one refresh.
func (b *testBackend) holdRefreshUntil(n int) {
	b.mu.Lock()
	b.gate = make(chan struct{})
	b.releaseAt = n
	b.mu.Unlock()
}

// holdRefresh makes refresh wait until release is called.
func (b *testBackend) holdRefresh() {
	b.holdRefreshUntil(-1)
}

func (b *testBackend) release() {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		b.releaseOnce.Do(func() { close(gate) })
	}
}

func (b *testBackend) tokensSeen(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen[path]...)
}

func (b *testBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, _ := bearer(r.Header.Get("Authorization"))

	switch r.URL.Path {
	case "/auth/refresh":
		b.refreshCalls.Add(1)
		b.mu.Lock()
		gate := b.gate
		b.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Second):
				b.t.Errorf("refresh gate never released")
			}
		}

		b.mu.Lock()
		code := b.refreshCode
		next := b.refreshTo
		if code == 0 {
			b.valid = next
		}
		b.mu.Unlock()

		if code != 0 {
			writeTestJSON(w, code, map[string]string{"message": "refresh refused"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]string{"accessToken": next})
		return

	case "/auth/logout":
		b.logoutCalls.Add(1)
		b.mu.Lock()
		code := b.logoutCode
		b.mu.Unlock()
		if code != 0 {
			writeTestJSON(w, code, map[string]string{"message": "logout refused"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	b.mu.Lock()
	b.seen[r.URL.Path] = append(b.seen[r.URL.Path], token)
	hook := b.onRequest
	b.mu.Unlock()
	if hook != nil {
		hook(r.URL.Path, token)
	}

	b.mu.Lock()
	ok := token != "" && token == b.valid && !b.rejectAll
	if !ok {
		b.unauthorized++
		if b.gate != nil && b.unauthorized == b.releaseAt {
			gate := b.gate
			b.releaseOnce.Do(func() { close(gate) })
		}
	}
	b.mu.Unlock()

	if !ok {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
		return
	}
	writeTestJSON(w, http.StatusOK, map[string]string{
		"path":       r.URL.Path,
		"token":      token,
		"request_id": r.Header.Get(HeaderRequestID),
	})
}

func bearer(value string) (string, bool) {
	const prefix = "Bearer "
	if len(value) <= len(prefix) || value[:len(prefix)] != prefix {
		return "", false
	}
	return value[len(prefix):], true
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, baseURL, token string, mutate func(*Config)) (*Client, *tokenstore.Memory) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	cfg.Refresh.Timeout = 5 * time.Second
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	store := tokenstore.NewMemory(token)
	client, err := New().WithConfig(cfg).WithTokenStore(store).Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, store
}

func counter(c *Client, id MetricID) uint64 {
	return c.MetricsSnapshot().Counters[id]
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}
