// ABOUTME: All-local gateway instance standing in for the host-side automation service.
// ABOUTME: Listens on :8051 seeded with sample diagrams; useful for fallback and forwarding tests.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389/drawbridge/internal/automation"
	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/diagram"
	"github.com/2389/drawbridge/internal/gateway"
)

func main() {
	listenAddr := flag.String("listen", ":8051", "address to listen on")
	documentsDir := flag.String("documents", "documents", "directory for saved diagram files")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *listenAddr, *documentsDir, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, listenAddr, documentsDir, logLevel string) error {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	cfg.Server.ListenAddr = listenAddr
	cfg.DocumentsDir = documentsDir
	cfg.Metrics.Enabled = false

	backend, err := automation.NewMemoryBackend(automation.MemoryConfig{
		DocumentsDir: documentsDir,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}
	if err := seedSamples(backend); err != nil {
		return fmt.Errorf("seeding sample diagrams: %w", err)
	}

	gw, err := gateway.New(cfg, logger, gateway.WithBackend(backend))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	logger.Info("fake automation instance ready", "listen_addr", listenAddr)
	return gw.Run(ctx)
}

// seedSamples loads a couple of documents so analyze/verify calls have
// something to chew on immediately.
func seedSamples(backend *automation.MemoryBackend) error {
	orderFlow, err := diagram.BuildDocument("order-flow", []diagram.PageInput{
		{
			Name: "Main",
			Shapes: []diagram.Shape{
				{ID: "start", Type: "Start", Properties: map[string]string{"name": "Start"}},
				{ID: "validate", Type: "Process", Text: "validate order", Properties: map[string]string{"name": "Validate"}},
				{ID: "approved", Type: "Decision", Text: "approved?", Properties: map[string]string{"name": "Approved?"}},
				{ID: "ship", Type: "Process", Text: "ship it", Properties: map[string]string{"name": "Ship"}},
				{ID: "end", Type: "End", Properties: map[string]string{"name": "Done"}},
			},
			Connectors: []diagram.Connector{
				{ID: "c1", From: "start", To: "validate"},
				{ID: "c2", From: "validate", To: "approved"},
				{ID: "c3", From: "approved", To: "ship", Label: "yes"},
				{ID: "c4", From: "approved", To: "end", Label: "no"},
				{ID: "c5", From: "ship", To: "end"},
			},
		},
	})
	if err != nil {
		return err
	}

	deployment, err := diagram.BuildDocument("deployment", []diagram.PageInput{
		{
			Name: "Topology",
			Shapes: []diagram.Shape{
				{ID: "lb", Type: "Process", Text: "load balancer"},
				{ID: "app1", Type: "Rectangle", Text: "app-1"},
				{ID: "app2", Type: "Rectangle", Text: "app-2"},
				{ID: "db", Type: "Database", Text: "postgres"},
			},
			Connectors: []diagram.Connector{
				{ID: "t1", From: "lb", To: "app1"},
				{ID: "t2", From: "lb", To: "app2"},
				{ID: "t3", From: "app1", To: "db"},
				{ID: "t4", From: "app2", To: "db"},
			},
		},
	})
	if err != nil {
		return err
	}

	backend.Seed(deployment)
	backend.Seed(orderFlow) // seeded last, so it is the active document
	return nil
}
