// ABOUTME: Entry point for the drawbridge diagram RPC gateway.
// ABOUTME: Subcommands: serve, health, methods, version.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/gateway"
	"github.com/2389/drawbridge/internal/methods"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                     _          _     _
  __| |_ __ __ ___      _| |__  _ __(_) __| | __ _  ___
 / _' | '__/ _' \ \ /\ / / '_ \| '__| |/ _' |/ _' |/ _ \
| (_| | | | (_| |\ V  V /| |_) | |  | | (_| | (_| |  __/
 \__,_|_|  \__,_| \_/\_/ |_.__/|_|  |_|\__,_|\__, |\___|
                                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: DRAWBRIDGE_CONFIG env var > XDG_CONFIG_HOME/drawbridge/gateway.yaml > ~/.config/drawbridge/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DRAWBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "drawbridge", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: drawbridge <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the gateway server")
		fmt.Println("  health     Check gateway health")
		fmt.Println("  methods    Print the method table")
		fmt.Println("  version    Print the version")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "methods":
		err = runMethods()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when none
// exists at the resolved path.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), configPath + " (not found, using defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:     %s\n", cfg.Server.ListenAddr)
	green.Print("    ▶ ")
	fmt.Printf("Automation: %s\n", routeLabel(cfg.Routes.Automation))
	green.Print("    ▶ ")
	fmt.Printf("AI:         %s (%s, %s)\n", routeLabel(cfg.Routes.AI), cfg.AI.Provider, cfg.AI.Model)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting drawbridge",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func routeLabel(route config.RouteConfig) string {
	if route.Mode == config.ModeLocal {
		return "local"
	}
	return fmt.Sprintf("%s → %s", route.Mode, route.Endpoint)
}

func runHealth(ctx context.Context) error {
	addr := "http://localhost:8050"
	if len(os.Args) > 2 {
		addr = os.Args[2]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runMethods prints the method table. Handlers are never invoked, so zero
// deps are fine here.
func runMethods() error {
	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)

	for _, spec := range methods.Table(methods.Deps{Logger: slog.Default()}) {
		bold.Printf("%s", spec.Name)
		gray.Printf("  [%s]\n", spec.Domain)
		if spec.Doc != "" {
			fmt.Printf("    %s\n", spec.Doc)
		}
		for _, f := range spec.Params {
			marker := "optional"
			if f.Required {
				marker = "required"
			}
			fmt.Printf("    - %s (%s, %s)", f.Name, f.Kind, marker)
			if f.Doc != "" {
				gray.Printf("  %s", f.Doc)
			}
			fmt.Println()
		}
		fmt.Println()
	}
	return nil
}
