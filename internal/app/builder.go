package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/catalog-cache/database"
	"github.com/stacklok/catalog-cache/internal/api"
	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/config"
	"github.com/stacklok/catalog-cache/internal/httpclient"
	"github.com/stacklok/catalog-cache/internal/profiles"
	"github.com/stacklok/catalog-cache/internal/query"
	"github.com/stacklok/catalog-cache/internal/search"
	"github.com/stacklok/catalog-cache/internal/service/local"
	"github.com/stacklok/catalog-cache/internal/sources"
	"github.com/stacklok/catalog-cache/internal/store"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
	"github.com/stacklok/catalog-cache/internal/sync/coordinator"
	"github.com/stacklok/catalog-cache/internal/telemetry"
	"github.com/stacklok/catalog-cache/internal/versions"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	instrumentationName = "github.com/stacklok/catalog-cache"
)

// CatalogAppOptions is a function that configures the app builder
type CatalogAppOptions func(*catalogAppConfig) error

// catalogAppConfig supports dependency injection for testing while
// providing production defaults
type catalogAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	fetcher  sources.Fetcher
	network  coordinator.NetworkClassifier
	notifier coordinator.Notifier

	// Skips applying migrations on open
	skipMigrations bool

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...CatalogAppOptions) (*catalogAppConfig, error) {
	cfg := &catalogAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithFetcher replaces the Xtream fetcher (for testing)
func WithFetcher(f sources.Fetcher) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithNetworkClassifier replaces the configured network classification
func WithNetworkClassifier(n coordinator.NetworkClassifier) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.network = n
		return nil
	}
}

// WithNotifier sets where sync completion notices go
func WithNotifier(n coordinator.Notifier) CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.notifier = n
		return nil
	}
}

// WithoutMigrations opens the cache without applying pending migrations
func WithoutMigrations() CatalogAppOptions {
	return func(cfg *catalogAppConfig) error {
		cfg.skipMigrations = true
		return nil
	}
}

// NewComponents builds everything except the scheduler and the HTTP server.
// The caller owns the result and must Close it.
func NewComponents(ctx context.Context, opts ...CatalogAppOptions) (*AppComponents, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildCoreComponents(ctx, b)
}

// NewCatalogApp builds the server with its scheduler and HTTP surface
func NewCatalogApp(ctx context.Context, opts ...CatalogAppOptions) (*CatalogApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildCoreComponents(ctx, b)
	if err != nil {
		return nil, err
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = components.Close(context.WithoutCancel(ctx))
		}
	}()

	components.SyncCoordinator = buildCoordinator(b, components)

	httpServer, err := buildHTTPServer(b, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &CatalogApp{
		config:     b.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

func buildCoreComponents(ctx context.Context, b *catalogAppConfig) (*AppComponents, error) {
	cfg := b.config
	c := &AppComponents{}

	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	telemetryCfg := cfg.Telemetry
	if telemetryCfg != nil && telemetryCfg.ServiceVersion == "" {
		withVersion := *telemetryCfg
		withVersion.ServiceVersion = versions.GetVersionInfo().Version
		telemetryCfg = &withVersion
	}
	tel, err := telemetry.New(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	c.Telemetry = tel
	tracer := tel.Tracer(instrumentationName)

	dbPath := cfg.Database.GetPath()
	if !b.skipMigrations {
		version, err := database.MigrateUp(dbPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Database schema ready", "path", dbPath, "version", version)
	}

	storeOpts := []store.Option{
		store.WithTracer(tracer),
		store.WithBusyTimeout(cfg.Database.GetBusyTimeout()),
	}
	if cfg.Database.MaxOpenConns > 0 {
		storeOpts = append(storeOpts, store.WithMaxOpenConns(cfg.Database.MaxOpenConns))
	}
	c.Store, err = store.Open(ctx, dbPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	c.Profiles, err = profiles.FromConfig(cfg.Profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	if err := c.Store.SyncProfiles(ctx, c.Profiles.List()); err != nil {
		return nil, fmt.Errorf("failed to register profiles: %w", err)
	}
	for _, p := range c.Profiles.List() {
		if !p.Credentials.Complete() {
			slog.Warn("Profile has no credentials; syncing it will fail", "profile", p.ID)
		}
	}

	queryMetrics, err := telemetry.NewQueryMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create query metrics: %w", err)
	}
	c.Index = search.New(c.Store,
		search.WithLimit(cfg.Query.GetSearchLimit()),
		search.WithMetrics(queryMetrics),
	)
	c.Engine = query.NewEngine(c.Store, c.Index,
		query.WithMaxLimit(cfg.Query.GetMaxLimit()),
		query.WithDefaultLimit(cfg.Query.GetDefaultLimit()),
		query.WithSlowQueryThreshold(cfg.Query.GetSlowQueryThreshold()),
		query.WithMetrics(queryMetrics),
	)

	c.Fetcher = b.fetcher
	if c.Fetcher == nil {
		c.Fetcher = sources.NewXtreamFetcher(sources.WithClientFactory(clientFactory(cfg)))
	}

	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	c.SyncManager = catalogsync.NewManager(c.Store, c.Fetcher, c.Profiles,
		catalogsync.WithContentTypes(cfg.Sync.GetContentTypes()...),
		catalogsync.WithPageTimeout(cfg.Sync.GetPageTimeout()),
		catalogsync.WithRetry(cfg.Sync.GetMaxRetries(), cfg.Sync.GetInitialBackoff(), cfg.Sync.GetMaxBackoff()),
		catalogsync.WithProgressRetention(cfg.Sync.GetProgressRetention()),
		catalogsync.WithSyncMetrics(syncMetrics),
		catalogsync.WithTracer(tracer),
	)

	c.Service, err = local.New(
		local.WithStore(c.Store),
		local.WithSearchIndex(c.Index),
		local.WithQueryEngine(c.Engine),
		local.WithSyncManager(c.SyncManager),
		local.WithProfiles(c.Profiles),
		local.WithFetcher(c.Fetcher),
		local.WithDetailsTTL(cfg.Details.GetTTL()),
		local.WithTracer(tracer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog service: %w", err)
	}

	slog.Info("Catalog components initialized",
		"profiles", len(c.Profiles.List()),
		"content_types", cfg.Sync.GetContentTypes())
	ok = true
	return c, nil
}

// clientFactory gives each profile its own rate-limited HTTP client
func clientFactory(cfg *config.Config) sources.ClientFactory {
	providers := make(map[string]config.ProviderConfig, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		providers[p.ID] = p.Provider
	}
	timeout := cfg.Sync.GetPageTimeout()

	return func(profile *catalog.Profile) httpclient.Client {
		provider := providers[profile.ID]
		rps := provider.GetRequestsPerSecond()
		opts := []httpclient.Option{
			httpclient.WithRateLimit(rps, int(math.Max(1, math.Ceil(rps)))),
		}
		if provider.UserAgent != "" {
			opts = append(opts, httpclient.WithUserAgent(provider.UserAgent))
		}
		return httpclient.NewDefaultClient(timeout, opts...)
	}
}

func buildCoordinator(b *catalogAppConfig, c *AppComponents) coordinator.Coordinator {
	cfg := b.config
	network := b.network
	if network == nil {
		network = coordinator.StaticNetwork(cfg.Scheduler.MeteredNetwork)
	}
	opts := []coordinator.Option{
		coordinator.WithCheckInterval(cfg.Scheduler.GetCheckInterval()),
		coordinator.WithJitter(cfg.Scheduler.GetJitter()),
		coordinator.WithContentTypes(cfg.Sync.GetContentTypes()...),
		coordinator.WithNetworkClassifier(network),
	}
	if b.notifier != nil {
		opts = append(opts, coordinator.WithNotifier(b.notifier))
	}
	return coordinator.New(c.SyncManager, c.Store, opts...)
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *catalogAppConfig, c *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	middlewares := b.middlewares
	if middlewares == nil {
		middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// first in the chain so rejected requests are counted too
	httpMetrics, err := telemetry.NewHTTPMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	if httpMetrics != nil {
		middlewares = append([]func(http.Handler) http.Handler{httpMetrics.Middleware}, middlewares...)
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(middlewares...)}
	if h := c.Telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
		slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
	}

	server := &http.Server{
		Addr:         b.address,
		Handler:      api.NewServer(c.Service, serverOpts...),
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
