package internaldefs

import (
	"time"

	goDocs "github.com/MrEthical07/goDocs"
)

// CounterDef maps a client counter to its exported name.
type CounterDef struct {
	ID   goDocs.MetricID
	Name string
	Help string
}

// HistogramDef maps a client histogram to its exported name.
type HistogramDef struct {
	ID   goDocs.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goDocs.MetricRequest, Name: "godocs_requests_total", Help: "Requests issued through the client, replays excluded."},
	{ID: goDocs.MetricRequestReplayed, Name: "godocs_requests_replayed_total", Help: "Requests resubmitted once after a session refresh."},
	{ID: goDocs.MetricRefreshStarted, Name: "godocs_refresh_started_total", Help: "Refresh calls sent to the backend."},
	{ID: goDocs.MetricRefreshJoined, Name: "godocs_refresh_joined_total", Help: "Callers that waited on a refresh already in flight."},
	{ID: goDocs.MetricRefreshSuccess, Name: "godocs_refresh_success_total", Help: "Refresh calls that produced a new access token."},
	{ID: goDocs.MetricRefreshFailure, Name: "godocs_refresh_failure_total", Help: "Refresh calls that failed."},
	{ID: goDocs.MetricSessionExpired, Name: "godocs_session_expired_total", Help: "Refresh calls rejected because the session credential is no longer valid."},
	{ID: goDocs.MetricProactiveRefresh, Name: "godocs_proactive_refresh_total", Help: "Refreshes started before sending because the token was about to expire."},
	{ID: goDocs.MetricTokenCleared, Name: "godocs_token_cleared_total", Help: "Local token removals."},
	{ID: goDocs.MetricUnauthorized, Name: "godocs_unauthorized_total", Help: "Requests that ended unauthorized."},
	{ID: goDocs.MetricClientError, Name: "godocs_client_error_total", Help: "Requests that ended with a 4xx response."},
	{ID: goDocs.MetricServerError, Name: "godocs_server_error_total", Help: "Requests that ended with a 5xx response."},
	{ID: goDocs.MetricNetworkError, Name: "godocs_network_error_total", Help: "Requests that failed before a response arrived."},
	{ID: goDocs.MetricLogout, Name: "godocs_logout_total", Help: "Logout calls."},
	{ID: goDocs.MetricLogoutFailure, Name: "godocs_logout_failure_total", Help: "Logout calls whose server-side revocation failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goDocs.MetricRequestLatency, Name: "godocs_request_latency_seconds", Help: "Request latency including any refresh wait."},
}

// GaugeDef maps one field of goDocs.Status to an exported gauge. Value reports
// false when the gauge has no sample for s.
type GaugeDef struct {
	Name  string
	Help  string
	Value func(s goDocs.Status, now time.Time) (int64, bool)
}

// GaugeDefs lists the session gauges in render order.
var GaugeDefs = []GaugeDef{
	{
		Name: "godocs_refresh_in_flight",
		Help: "1 while a refresh call is outstanding.",
		Value: func(s goDocs.Status, _ time.Time) (int64, bool) {
			return boolValue(s.State == goDocs.StateRefreshInFlight), true
		},
	},
	{
		Name: "godocs_session_authenticated",
		Help: "1 while a session token is held.",
		Value: func(s goDocs.Status, _ time.Time) (int64, bool) {
			return boolValue(s.Authenticated), true
		},
	},
	{
		Name: "godocs_token_store_up",
		Help: "1 when the last read of the token store succeeded.",
		Value: func(s goDocs.Status, _ time.Time) (int64, bool) {
			return boolValue(s.StoreErr == nil), true
		},
	},
	{
		Name: "godocs_session_expires_in_seconds",
		Help: "Seconds until the held token's exp claim; negative once expired.",
		Value: func(s goDocs.Status, now time.Time) (int64, bool) {
			if !s.Authenticated || s.ExpiresAt.IsZero() {
				return 0, false
			}
			return int64(s.ExpiresAt.Sub(now) / time.Second), true
		},
	},
}

// Audit drop counter, labeled by event type.
const (
	AuditDroppedName  = "godocs_audit_dropped_total"
	AuditDroppedHelp  = "Audit events dropped under dispatcher backpressure."
	AuditDroppedLabel = "event"
)

func boolValue(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// HistogramBounds are the upper bounds of the client's latency buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bound for exporters that cannot use labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
