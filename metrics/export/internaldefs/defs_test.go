package internaldefs

import (
	"errors"
	"strings"
	"testing"
	"time"

	goDocs "github.com/MrEthical07/goDocs"
)

func TestDefinitionsAreUnique(t *testing.T) {
	names := map[string]bool{}
	ids := map[uint16]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "godocs_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q breaks naming convention", def.Name)
		}
		if names[def.Name] || ids[uint16(def.ID)] {
			t.Fatalf("duplicate counter definition %q", def.Name)
		}
		names[def.Name] = true
		ids[uint16(def.ID)] = true
	}
	if len(HistogramBounds) != len(HistogramBoundSuffix) || len(HistogramBounds) != 8 {
		t.Fatalf("bucket bounds out of sync")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGaugeValues(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	values := func(s goDocs.Status) map[string]int64 {
		out := map[string]int64{}
		for _, def := range GaugeDefs {
			if v, ok := def.Value(s, now); ok {
				out[def.Name] = v
			}
		}
		return out
	}

	got := values(goDocs.Status{
		State:         goDocs.StateRefreshInFlight,
		Authenticated: true,
		ExpiresAt:     now.Add(90 * time.Second),
	})
	want := map[string]int64{
		"godocs_refresh_in_flight":          1,
		"godocs_session_authenticated":      1,
		"godocs_token_store_up":             1,
		"godocs_session_expires_in_seconds": 90,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s: expected %d, got %d", name, v, got[name])
		}
	}

	got = values(goDocs.Status{StoreErr: errors.New("redis down")})
	if got["godocs_token_store_up"] != 0 || got["godocs_session_authenticated"] != 0 {
		t.Fatalf("unexpected gauges for unreadable store: %v", got)
	}
	if _, ok := got["godocs_session_expires_in_seconds"]; ok {
		t.Fatalf("expiry gauge must be absent without a session")
	}
}
