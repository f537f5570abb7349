// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  listen_addr: "0.0.0.0:8050"
  rate_limit: 50
  rate_burst: 100

routes:
  automation:
    mode: "remote_fallback_local"
    endpoint: "http://host.docker.internal:8051"
    timeout: "20s"
    retries: 3
    backoff: "250ms"
  ai:
    mode: "local"
    timeout: "90s"

health:
  probe_interval: "10s"
  probe_timeout: "1s"

ai:
  provider: "ollama"
  model: "llama3"
  base_url: "http://localhost:11434"
  context_budget: 4096

store:
  path: "./drawbridge.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify server config
	if cfg.Server.ListenAddr != "0.0.0.0:8050" {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, "0.0.0.0:8050")
	}
	if cfg.Server.RateLimit != 50 {
		t.Errorf("Server.RateLimit = %v, want 50", cfg.Server.RateLimit)
	}

	// Verify routes with duration parsing
	auto := cfg.Routes.Automation
	if auto.Mode != ModeRemoteFallbackLocal {
		t.Errorf("Routes.Automation.Mode = %q, want %q", auto.Mode, ModeRemoteFallbackLocal)
	}
	if auto.Endpoint != "http://host.docker.internal:8051" {
		t.Errorf("Routes.Automation.Endpoint = %q", auto.Endpoint)
	}
	if auto.Timeout != 20*time.Second {
		t.Errorf("Routes.Automation.Timeout = %v, want %v", auto.Timeout, 20*time.Second)
	}
	if auto.Retries != 3 {
		t.Errorf("Routes.Automation.Retries = %d, want 3", auto.Retries)
	}
	if auto.Backoff != 250*time.Millisecond {
		t.Errorf("Routes.Automation.Backoff = %v, want %v", auto.Backoff, 250*time.Millisecond)
	}

	if cfg.Routes.AI.Mode != ModeLocal {
		t.Errorf("Routes.AI.Mode = %q, want %q", cfg.Routes.AI.Mode, ModeLocal)
	}
	if cfg.Routes.AI.Timeout != 90*time.Second {
		t.Errorf("Routes.AI.Timeout = %v, want %v", cfg.Routes.AI.Timeout, 90*time.Second)
	}

	// Verify health config
	if cfg.Health.ProbeInterval != 10*time.Second {
		t.Errorf("Health.ProbeInterval = %v, want %v", cfg.Health.ProbeInterval, 10*time.Second)
	}
	if cfg.Health.ProbeTimeout != time.Second {
		t.Errorf("Health.ProbeTimeout = %v, want %v", cfg.Health.ProbeTimeout, time.Second)
	}

	// Verify AI config
	if cfg.AI.Provider != "ollama" {
		t.Errorf("AI.Provider = %q, want %q", cfg.AI.Provider, "ollama")
	}
	if cfg.AI.ContextBudget != 4096 {
		t.Errorf("AI.ContextBudget = %d, want 4096", cfg.AI.ContextBudget)
	}

	// Verify store config
	if cfg.Store.Path != "./drawbridge.db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "./drawbridge.db")
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A minimal config keeps every default.
	cfg, err := Load(writeConfig(t, `
logging:
  level: "info"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8050" {
		t.Errorf("default ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8050")
	}
	if cfg.Routes.Automation.Mode != ModeLocal {
		t.Errorf("default automation mode = %q, want %q", cfg.Routes.Automation.Mode, ModeLocal)
	}
	if cfg.Routes.Automation.Timeout != 30*time.Second {
		t.Errorf("default automation timeout = %v, want %v", cfg.Routes.Automation.Timeout, 30*time.Second)
	}
	if cfg.Routes.Automation.Retries != 2 {
		t.Errorf("default automation retries = %d, want 2", cfg.Routes.Automation.Retries)
	}
	if cfg.Routes.Automation.Backoff != 500*time.Millisecond {
		t.Errorf("default automation backoff = %v, want %v", cfg.Routes.Automation.Backoff, 500*time.Millisecond)
	}
	if cfg.Health.ProbeInterval != 15*time.Second {
		t.Errorf("default probe interval = %v, want %v", cfg.Health.ProbeInterval, 15*time.Second)
	}
	if cfg.AI.Provider != "ollama" {
		t.Errorf("default AI provider = %q, want %q", cfg.AI.Provider, "ollama")
	}
	if cfg.AI.Model != "llama3" {
		t.Errorf("default AI model = %q, want %q", cfg.AI.Model, "llama3")
	}
	if !cfg.Metrics.Enabled {
		t.Error("default Metrics.Enabled = false, want true")
	}
	if cfg.Store.Path != "" {
		t.Errorf("default Store.Path = %q, want empty", cfg.Store.Path)
	}
	if cfg.DocumentsDir != "documents" {
		t.Errorf("default DocumentsDir = %q, want %q", cfg.DocumentsDir, "documents")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("DRAWBRIDGE_TEST_ENDPOINT", "http://host.docker.internal:8051")
	t.Setenv("DRAWBRIDGE_TEST_SECRET", "sekrit")

	cfg, err := Load(writeConfig(t, `
routes:
  automation:
    mode: "remote"
    endpoint: "${DRAWBRIDGE_TEST_ENDPOINT}"

auth:
  forward_secret: "${DRAWBRIDGE_TEST_SECRET}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Routes.Automation.Endpoint != "http://host.docker.internal:8051" {
		t.Errorf("Endpoint = %q, env var not expanded", cfg.Routes.Automation.Endpoint)
	}
	if cfg.Auth.ForwardSecret != "sekrit" {
		t.Errorf("ForwardSecret = %q, env var not expanded", cfg.Auth.ForwardSecret)
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	_, err := Load(writeConfig(t, `
routes:
  automation:
    mode: "remote"
    endpoint: "${DRAWBRIDGE_UNSET_VAR_FOR_TEST}"
`))
	// Empty endpoint with remote mode must fail validation.
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "endpoint is required") {
		t.Errorf("error = %v, want endpoint required", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
routes:
  automation:
    mode: "local"
    timeout: "not-a-duration"
`))
	if err == nil {
		t.Fatal("Load() expected duration error, got nil")
	}
	if !strings.Contains(err.Error(), "parsing routes.automation.timeout") {
		t.Errorf("error = %v, want duration parse failure", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "routes: [not: valid: yaml"))
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing listen addr",
			mutate:  func(c *Config) { c.Server.ListenAddr = "" },
			wantErr: "server.listen_addr is required",
		},
		{
			name: "tailscale allows empty listen addr",
			mutate: func(c *Config) {
				c.Server.ListenAddr = ""
				c.Tailscale.Enabled = true
				c.Tailscale.Hostname = "drawbridge"
			},
			wantErr: "",
		},
		{
			name:    "tailscale without hostname",
			mutate:  func(c *Config) { c.Tailscale.Enabled = true },
			wantErr: "tailscale.hostname is required",
		},
		{
			name:    "remote without endpoint",
			mutate:  func(c *Config) { c.Routes.Automation.Mode = ModeRemote },
			wantErr: "routes.automation.endpoint is required",
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Routes.AI.Mode = "sideways" },
			wantErr: "routes.ai.mode must be one of",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Routes.Automation.Retries = -1 },
			wantErr: "routes.automation.retries must not be negative",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Routes.Automation.Timeout = 0 },
			wantErr: "routes.automation.timeout must be positive",
		},
		{
			name:    "bad provider",
			mutate:  func(c *Config) { c.AI.Provider = "clippy" },
			wantErr: "ai.provider must be one of",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Server.RateLimit = -5 },
			wantErr: "server.rate_limit must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestRouteFor(t *testing.T) {
	cfg := Default()
	cfg.Routes.Automation.Endpoint = "http://example:8051"

	route, ok := cfg.RouteFor("automation")
	if !ok {
		t.Fatal("RouteFor(automation) not found")
	}
	if route.Endpoint != "http://example:8051" {
		t.Errorf("RouteFor(automation).Endpoint = %q", route.Endpoint)
	}

	if _, ok := cfg.RouteFor("system"); ok {
		t.Error("RouteFor(system) = ok, want not found")
	}
}
