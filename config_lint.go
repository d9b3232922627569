package goDocs

import (
	"net"
	"net/url"
	"time"
)

// LintWarning is a configuration smell that Validate accepts but that is unlikely to
// be intended outside local development.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

const proactiveWindowLintLimit = 10 * time.Minute

// Lint reports non-fatal configuration warnings. It assumes Validate passes.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if u, err := url.Parse(c.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		ws = append(ws, LintWarning{
			Code:    "insecure_base_url",
			Message: "BaseURL uses plain http for a non-loopback host; bearer tokens travel in clear text",
		})
	}
	if c.Refresh.Timeout > c.Timeout {
		ws = append(ws, LintWarning{
			Code:    "refresh_timeout_exceeds_timeout",
			Message: "Refresh Timeout is longer than Timeout, which also bounds the refresh call",
		})
	}
	if c.Refresh.ProactiveWindow > proactiveWindowLintLimit {
		ws = append(ws, LintWarning{
			Code:    "proactive_window_large",
			Message: "Refresh ProactiveWindow over 10m refreshes on almost every request for short-lived tokens",
		})
	}
	if c.Store.Backend == StoreRedis && c.Store.TTL == 0 {
		ws = append(ws, LintWarning{
			Code:    "redis_token_no_ttl",
			Message: "Redis token store has no TTL; abandoned tokens are never evicted",
		})
	}
	if c.Audit.Enabled && c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_drops_events",
			Message: "Audit DropIfFull discards events under backpressure",
		})
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		ws = append(ws, LintWarning{
			Code:    "latency_without_metrics",
			Message: "Metrics EnableLatencyHistograms has no effect while Metrics is disabled",
		})
	}

	return ws
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
