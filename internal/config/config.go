// ABOUTME: Configuration loading and parsing for drawbridge
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete drawbridge configuration
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Tailscale    TailscaleConfig `yaml:"tailscale"`
	Routes       RoutesConfig    `yaml:"routes"`
	Health       HealthConfig    `yaml:"health"`
	AI           AIConfig        `yaml:"ai"`
	Store        StoreConfig     `yaml:"store"`
	Auth         AuthConfig      `yaml:"auth"`
	Logging      LoggingConfig   `yaml:"logging"`
	Metrics      MetricsConfig   `yaml:"metrics"`
	DocumentsDir string          `yaml:"documents_dir"`
}

// ServerConfig holds the RPC listener configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// RateLimit is requests per second allowed on /rpc; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// RoutesConfig holds the per-domain service routes, resolved once at startup.
type RoutesConfig struct {
	Automation RouteConfig `yaml:"automation"`
	AI         RouteConfig `yaml:"ai"`
}

// RouteConfig describes how calls for one domain are executed: in-process,
// forwarded to Endpoint, or forwarded with a local fallback.
type RouteConfig struct {
	Mode     string        `yaml:"mode"` // local | remote | remote_fallback_local
	Endpoint string        `yaml:"endpoint"`
	Retries  int           `yaml:"retries"`
	Timeout  time.Duration `yaml:"-"`
	Backoff  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
	BackoffRaw string `yaml:"backoff"`
}

// Route modes.
const (
	ModeLocal               = "local"
	ModeRemote              = "remote"
	ModeRemoteFallbackLocal = "remote_fallback_local"
)

// HealthConfig holds endpoint probing configuration
type HealthConfig struct {
	ProbeInterval time.Duration `yaml:"-"`
	ProbeTimeout  time.Duration `yaml:"-"`

	ProbeIntervalRaw string `yaml:"probe_interval"`
	ProbeTimeoutRaw  string `yaml:"probe_timeout"`
}

// AIConfig holds the AI collaborator configuration
type AIConfig struct {
	Provider    string  `yaml:"provider"` // ollama | openai
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`

	// ContextBudget is the token budget for diagram context sent to the model.
	ContextBudget int `yaml:"context_budget"`
}

// StoreConfig holds call log / document store configuration. An empty path
// disables the store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds inbound and gateway-to-gateway auth configuration
type AuthConfig struct {
	// APIKeys are bcrypt hashes of accepted client keys. Empty disables
	// client auth.
	APIKeys []string `yaml:"api_keys"`

	// ForwardSecret signs and verifies gateway-to-gateway tokens. Empty
	// disables forward auth.
	ForwardSecret string `yaml:"forward_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration defaults. Load unmarshals on top of this,
// so omitted fields keep their default while explicit values win.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8050",
		},
		Routes: RoutesConfig{
			Automation: RouteConfig{
				Mode:    ModeLocal,
				Retries: 2,
				Timeout: 30 * time.Second,
				Backoff: 500 * time.Millisecond,
			},
			AI: RouteConfig{
				Mode:    ModeLocal,
				Retries: 2,
				Timeout: 60 * time.Second,
				Backoff: 500 * time.Millisecond,
			},
		},
		Health: HealthConfig{
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  2 * time.Second,
		},
		AI: AIConfig{
			Provider:      "ollama",
			Model:         "llama3",
			Temperature:   0.7,
			ContextBudget: 2048,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		DocumentsDir: "documents",
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A listen address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if err := c.Routes.Automation.validate("routes.automation"); err != nil {
		return err
	}
	if err := c.Routes.AI.validate("routes.ai"); err != nil {
		return err
	}

	switch c.AI.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("ai.provider must be one of: ollama, openai")
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	return nil
}

func (r *RouteConfig) validate(name string) error {
	switch r.Mode {
	case ModeLocal:
	case ModeRemote, ModeRemoteFallbackLocal:
		if r.Endpoint == "" {
			return fmt.Errorf("%s.endpoint is required when mode is %q", name, r.Mode)
		}
	default:
		return fmt.Errorf("%s.mode must be one of: local, remote, remote_fallback_local", name)
	}

	if r.Retries < 0 {
		return fmt.Errorf("%s.retries must not be negative", name)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", name)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	routes := []struct {
		name  string
		route *RouteConfig
	}{
		{"routes.automation", &cfg.Routes.Automation},
		{"routes.ai", &cfg.Routes.AI},
	}

	for _, r := range routes {
		if r.route.TimeoutRaw != "" {
			d, err := time.ParseDuration(r.route.TimeoutRaw)
			if err != nil {
				return fmt.Errorf("parsing %s.timeout %q: %w", r.name, r.route.TimeoutRaw, err)
			}
			r.route.Timeout = d
		}
		if r.route.BackoffRaw != "" {
			d, err := time.ParseDuration(r.route.BackoffRaw)
			if err != nil {
				return fmt.Errorf("parsing %s.backoff %q: %w", r.name, r.route.BackoffRaw, err)
			}
			r.route.Backoff = d
		}
	}

	if cfg.Health.ProbeIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.Health.ProbeIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing probe_interval %q: %w", cfg.Health.ProbeIntervalRaw, err)
		}
		cfg.Health.ProbeInterval = d
	}

	if cfg.Health.ProbeTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Health.ProbeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing probe_timeout %q: %w", cfg.Health.ProbeTimeoutRaw, err)
		}
		cfg.Health.ProbeTimeout = d
	}

	return nil
}

// RouteFor returns the route for a domain name ("automation" or "ai").
// System methods never consult a route.
func (c *Config) RouteFor(domain string) (RouteConfig, bool) {
	switch domain {
	case "automation":
		return c.Routes.Automation, true
	case "ai":
		return c.Routes.AI, true
	}
	return RouteConfig{}, false
}
