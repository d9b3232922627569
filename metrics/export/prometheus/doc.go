// Package prometheus renders goDocs client metrics in the Prometheus text format.
//
// [NewPrometheusExporter] wraps a [goDocs.Client] and exposes an [http.Handler] for a
// /metrics route. Counters are named godocs_*_total and the request latency histogram
// is godocs_request_latency_seconds. Nothing is registered globally.
package prometheus
