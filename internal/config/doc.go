// Package config handles configuration loading for drawbridge.
//
// # Overview
//
// Configuration is loaded once at startup from a YAML file with environment
// variable expansion, then validated. The resulting Config is immutable and
// passed explicitly to the components that need it; there is no hot reload.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DRAWBRIDGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/drawbridge/gateway.yaml
//  3. ~/.config/drawbridge/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  forward_secret: "${DRAWBRIDGE_FORWARD_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	routes:
//	  automation:
//	    timeout: "30s"
//	    backoff: "500ms"
//	health:
//	  probe_interval: "15s"
//	  probe_timeout: "2s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  listen_addr: ":8050"
//	  rate_limit: 50      # requests/second on /rpc, 0 disables
//	  rate_burst: 100
//
// Routes (per-domain execution site):
//
//	routes:
//	  automation:
//	    mode: "remote_fallback_local"   # local, remote, remote_fallback_local
//	    endpoint: "http://host.docker.internal:8051"
//	    timeout: "30s"
//	    retries: 2
//	    backoff: "500ms"
//	  ai:
//	    mode: "local"
//
// AI collaborator:
//
//	ai:
//	  provider: "ollama"     # ollama, openai
//	  model: "llama3"
//	  base_url: "http://localhost:11434"
//	  context_budget: 2048   # tokens of diagram context per question
//
// Store (call log and documents; empty path disables):
//
//	store:
//	  path: "/var/lib/drawbridge/gateway.db"
//
// Authentication:
//
//	auth:
//	  api_keys: []                   # bcrypt hashes of accepted client keys
//	  forward_secret: "${DRAWBRIDGE_FORWARD_SECRET}"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "drawbridge"
//	  auth_key: "${TS_AUTHKEY}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Validate() checks route modes, endpoint presence for remote modes, the AI
// provider name, and duration formats, with explicit messages naming the
// offending field.
package config
