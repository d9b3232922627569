package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	goDocs "github.com/MrEthical07/goDocs"
	"github.com/MrEthical07/goDocs/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goDocs.MetricsSnapshot
	Status(ctx context.Context) goDocs.Status
}

// PrometheusExporter renders client metrics and session gauges in Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
	now    func() time.Time
}

// NewPrometheusExporter creates a Prometheus exporter that reads from client.
func NewPrometheusExporter(client *goDocs.Client) *PrometheusExporter {
	return NewPrometheusExporterFromSource(client)
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any value
// exposing a snapshot and a status.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source, now: time.Now}
}

// Handler returns an http.Handler that serves Prometheus metrics. The scrape request's
// context bounds the token store read.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.RenderContext(r.Context())))
	})
}

// Render is RenderContext with a background context.
func (p *PrometheusExporter) Render() string {
	return p.RenderContext(context.Background())
}

// RenderContext returns the current metrics in Prometheus text exposition format.
// Counters and histograms are omitted when the client records none; session gauges
// are always present.
func (p *PrometheusExporter) RenderContext(ctx context.Context) string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	status := p.source.Status(ctx)

	var b strings.Builder
	b.Grow(4096)

	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 {
		for _, def := range internaldefs.CounterDefs {
			writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
		}
		for _, def := range internaldefs.HistogramDefs {
			nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
			cumulative := internaldefs.CumulativeBuckets(nonCumulative)
			writeHistogram(&b, def.Name, def.Help, cumulative)
		}
	}

	now := p.now()
	for _, def := range internaldefs.GaugeDefs {
		if v, ok := def.Value(status, now); ok {
			writeGauge(&b, def.Name, def.Help, v)
		}
	}

	writeAuditDropped(&b, status.AuditDropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeGauge(b *strings.Builder, name, help string, value int64) {
	writeHeader(b, name, help, "gauge")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(value, 10))
	b.WriteByte('\n')
}

func writeAuditDropped(b *strings.Builder, byEvent map[string]uint64) {
	if len(byEvent) == 0 {
		return
	}
	events := make([]string, 0, len(byEvent))
	for event := range byEvent {
		events = append(events, event)
	}
	sort.Strings(events)

	writeHeader(b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	for _, event := range events {
		b.WriteString(internaldefs.AuditDroppedName)
		b.WriteByte('{')
		b.WriteString(internaldefs.AuditDroppedLabel)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(event))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(byEvent[event], 10))
		b.WriteByte('\n')
	}
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Snapshots carry bucket counts only.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}
