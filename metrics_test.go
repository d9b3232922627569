package goDocs

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricRequest)

	if got := m.Value(MetricRequest); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRefreshStarted)
	m.Inc(MetricRefreshStarted)
	m.Inc(MetricRefreshStarted)

	if got := m.Value(MetricRefreshStarted); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricRequest)
	m.Observe(MetricRequestLatency, time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() || m.Value(MetricRequest) != 0 {
		t.Fatalf("nil metrics must be inert")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricRequestLatency, d)
	}
	// Counters have no histogram.
	m.Observe(MetricRequest, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricRequestLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricRequest]; ok {
		t.Fatalf("unexpected histogram for a counter")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricRefreshSuccess)
	m.Inc(MetricRefreshFailure)
	m.Inc(MetricRefreshFailure)
	m.Observe(MetricRequestLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected MetricRefreshSuccess=1 got %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricRefreshFailure] != 2 {
		t.Fatalf("expected MetricRefreshFailure=2 got %d", snap.Counters[MetricRefreshFailure])
	}
	if _, ok := snap.Counters[MetricRequestLatency]; ok {
		t.Fatalf("latency must not appear as a counter")
	}
	if snap.Histograms[MetricRequestLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricRequestLatency][0])
	}
}

func TestClientRecordsRequestLatency(t *testing.T) {
	_, srv := newTestBackend(t, "T1", "T2")
	client, _ := newTestClient(t, srv.URL, "T1", func(c *Config) {
		c.Metrics.EnableLatencyHistograms = true
	})

	for i := 0; i < 3; i++ {
		if _, err := client.Get(context.Background(), "/feed", nil); err != nil {
			t.Fatalf("get: %v", err)
		}
	}

	snap := client.MetricsSnapshot()
	if snap.Counters[MetricRequest] != 3 {
		t.Fatalf("expected 3 requests, got %d", snap.Counters[MetricRequest])
	}
	var total uint64
	for _, v := range snap.Histograms[MetricRequestLatency] {
		total += v
	}
	if total != 3 {
		t.Fatalf("expected 3 latency observations, got %d", total)
	}
}

func TestClientWithoutMetricsReturnsEmptySnapshot(t *testing.T) {
	_, srv := newTestBackend(t, "T1", "T2")
	client, _ := newTestClient(t, srv.URL, "T1", func(c *Config) {
		c.Metrics.Enabled = false
	})

	if _, err := client.Get(context.Background(), "/feed", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap := client.MetricsSnapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap.Counters)
	}
}
