// ABOUTME: Gateway construction and lifecycle: wiring, listeners, graceful shutdown.
// ABOUTME: Plain TCP by default; a tsnet listener replaces it when Tailscale is enabled.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"tailscale.com/tsnet"

	"github.com/2389/drawbridge/internal/ai"
	"github.com/2389/drawbridge/internal/automation"
	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/dispatch"
	"github.com/2389/drawbridge/internal/forward"
	"github.com/2389/drawbridge/internal/methods"
	"github.com/2389/drawbridge/internal/registry"
	"github.com/2389/drawbridge/internal/store"
)

// Gateway owns every component handle and the listener lifecycle.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	serverID   string
	store      store.Store
	backend    automation.Backend
	provider   ai.Provider
	tracker    *forward.Tracker
	forwarder  *forward.Client
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	auth       *authenticator
	limiter    *rate.Limiter

	promRegistry *prometheus.Registry
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
}

// Option overrides a wired component, mainly for tests and the fake
// automation instance.
type Option func(*Gateway)

// WithBackend substitutes the automation backend.
func WithBackend(b automation.Backend) Option {
	return func(g *Gateway) { g.backend = b }
}

// WithProvider substitutes the AI provider.
func WithProvider(p ai.Provider) Option {
	return func(g *Gateway) { g.provider = p }
}

// New creates a Gateway from validated configuration. Wiring order: store,
// backend, provider, forwarder, method registry, dispatcher, HTTP surfaces.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		config:   cfg,
		logger:   logger.With("component", "gateway"),
		serverID: uuid.New().String(),
		tracker:  forward.NewTracker(),
	}
	for _, opt := range opts {
		opt(g)
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	g.store = st

	if g.backend == nil {
		mcfg := automation.MemoryConfig{
			DocumentsDir: documentsDir(cfg),
			Logger:       logger,
		}
		if st != nil {
			mcfg.Store = st
		}
		backend, err := automation.NewMemoryBackend(mcfg)
		if err != nil {
			return nil, fmt.Errorf("creating automation backend: %w", err)
		}
		g.backend = backend
	}

	if g.provider == nil {
		g.provider = buildProvider(cfg.AI, logger)
	}

	var minter *forward.TokenMinter
	if cfg.Auth.ForwardSecret != "" {
		minter = forward.NewTokenMinter([]byte(cfg.Auth.ForwardSecret), forward.DefaultTokenTTL)
	}
	g.forwarder = forward.NewClient(logger, g.tracker, minter)

	var m *dispatch.Metrics
	if cfg.Metrics.Enabled {
		g.promRegistry = prometheus.NewRegistry()
		m = dispatch.NewMetrics(g.promRegistry)
		g.forwarder.OnRetry(m.RetryHook())
	}

	table := methods.Table(methods.Deps{
		Backend:       g.backend,
		Provider:      g.provider,
		Tracker:       g.tracker,
		Model:         cfg.AI.Model,
		ContextBudget: cfg.AI.ContextBudget,
		Logger:        logger,
	})
	reg, err := registry.Build(logger, table, dispatch.LocalityFromRoutes(cfg.Routes))
	if err != nil {
		return nil, fmt.Errorf("building method registry: %w", err)
	}
	g.registry = reg

	g.dispatcher = dispatch.New(reg, cfg.Routes, g.forwarder, st, m, logger)
	g.auth = newAuthenticator(cfg.Auth, minter, logger)

	if cfg.Server.RateLimit > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = int(cfg.Server.RateLimit) + 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           g.buildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler exposes the HTTP surface for in-process tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Registry exposes the method table for the docs page and the CLI.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Store.Path
	if envPath := os.Getenv("DRAWBRIDGE_DB"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func documentsDir(cfg *config.Config) string {
	if cfg.DocumentsDir != "" {
		return cfg.DocumentsDir
	}
	return filepath.Join(".", "documents")
}

func buildProvider(cfg config.AIConfig, logger *slog.Logger) ai.Provider {
	if cfg.Provider == "openai" {
		return ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, logger)
	}
	return ai.NewOllamaProvider(ai.OllamaConfig{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}, logger)
}

// remoteEndpoints collects the endpoints the probe loop should watch.
func (g *Gateway) remoteEndpoints() []string {
	var endpoints []string
	seen := map[string]bool{}
	for _, route := range []config.RouteConfig{g.config.Routes.Automation, g.config.Routes.AI} {
		if route.Mode == config.ModeLocal || route.Endpoint == "" || seen[route.Endpoint] {
			continue
		}
		seen[route.Endpoint] = true
		endpoints = append(endpoints, route.Endpoint)
	}
	return endpoints
}

// Run serves until ctx is canceled or a listener fails, then shuts down
// gracefully with a fresh timeout.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	if endpoints := g.remoteEndpoints(); len(endpoints) > 0 {
		go g.forwarder.ProbeLoop(ctx, endpoints,
			g.config.Health.ProbeInterval, g.config.Health.ProbeTimeout)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a background context since the run context is
// already canceled by the time we get here.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown closes the HTTP server, the tsnet node, and the store, collecting
// errors rather than stopping at the first.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", g.config.Server.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", g.config.Server.ListenAddr, err)
	}
	return ln, nil
}

// setupTailscaleListener brings up a tsnet node and listens on it instead of
// the plain TCP address.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node",
		"hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	if _, err := g.tsnetServer.Up(ctx); err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale port: %w", err)
	}
	return ln, nil
}

func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "drawbridge", "tailscale"), nil
}

func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}
