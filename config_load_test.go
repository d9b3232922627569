package goDocs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "godocs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := writeConfigFile(t, `
base_url: https://api.example.com
timeout: 20s
refresh:
  timeout: 5s
  proactive_window: 45s
store:
  backend: file
  file_path: /tmp/godocs-session.json
metrics:
  enabled: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://api.example.com" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.Timeout != 20*time.Second || cfg.Refresh.Timeout != 5*time.Second || cfg.Refresh.ProactiveWindow != 45*time.Second {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.Store.Backend != StoreFile || cfg.Store.FilePath != "/tmp/godocs-session.json" {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
	if !cfg.Metrics.Enabled {
		t.Fatalf("expected metrics enabled")
	}
	// Fields absent from the file keep their defaults.
	if cfg.Endpoints.Refresh != DefaultConfig().Endpoints.Refresh || cfg.Store.Key != "token" {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, "base_url: https://api.example.com\ntimeout: 20s\n")

	t.Setenv(EnvBaseURL, "https://staging.example.com")
	t.Setenv(EnvTimeout, "3s")
	t.Setenv(EnvStoreBackend, "redis")
	t.Setenv(EnvRedisAddr, "127.0.0.1:6379")
	t.Setenv(EnvMetricsEnabled, "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://staging.example.com" || cfg.Timeout != 3*time.Second {
		t.Fatalf("env did not override: %+v", cfg)
	}
	if cfg.Store.Backend != StoreRedis || cfg.Store.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("unexpected store %+v", cfg.Store)
	}
	if !cfg.Metrics.Enabled {
		t.Fatalf("expected metrics enabled")
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://api.example.com")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://api.example.com" || cfg.Timeout != DefaultConfig().Timeout {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", yaml: "base_url: [", wantErr: "parse config"},
		{name: "bad env duration", env: map[string]string{EnvRefreshTimeout: "soon"}, wantErr: EnvRefreshTimeout},
		{name: "bad env bool", env: map[string]string{EnvMetricsEnabled: "maybe"}, wantErr: EnvMetricsEnabled},
		{name: "invalid result", yaml: "base_url: ftp://example.com\n", wantErr: "scheme"},
		{name: "file backend without path", env: map[string]string{EnvStoreBackend: "file"}, wantErr: "FilePath"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.yaml != "" {
				path = writeConfigFile(t, tc.yaml)
			}

			_, err := LoadConfig(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
