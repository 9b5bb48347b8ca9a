// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides the core catalog browse service for AlignScope.
//
// This package contains the main service type that coordinates all
// components of a running catalog server: the manifest watcher, the
// BadgerDB result store, session management, HTTP routing, and
// observability infrastructure.
//
// # Enterprise Integration
//
// The service supports dependency injection via extensions.ServiceOptions,
// enabling AlignScope Enterprise to provide custom implementations of:
//   - AccessProvider: Viewer identity and access control
//   - AuditLogger: Compliance audit logging
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := catalog.Config{DataDir: "dist"}
//	svc, err := catalog.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// Enterprise (with custom implementations):
//
//	opts := &extensions.ServiceOptions{
//	    AccessProvider: enterpriseAccess,
//	    AuditLogger:    enterpriseAudit,
//	}
//	svc, err := catalog.New(cfg, opts)
//
// # Import Path
//
// Enterprise imports this package as:
//
//	import "github.com/AleutianAI/AlignScope/services/catalog"
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AlignScope/pkg/extensions"
	"github.com/AleutianAI/AlignScope/pkg/logging"
	"github.com/AleutianAI/AlignScope/services/catalog/builder"
	"github.com/AleutianAI/AlignScope/services/catalog/columns"
	"github.com/AleutianAI/AlignScope/services/catalog/fetch"
	"github.com/AleutianAI/AlignScope/services/catalog/observability"
	"github.com/AleutianAI/AlignScope/services/catalog/routes"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
	"github.com/AleutianAI/AlignScope/services/catalog/storage"
	"github.com/AleutianAI/AlignScope/services/catalog/watcher"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the catalog browse service.
//
// # Description
//
// Service abstracts the server lifecycle, enabling testing and
// alternative implementations. The interface follows the minimal surface
// area principle - only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Limitations
//
//   - Run() blocks until a shutdown signal or server error
//
// # Assumptions
//
//   - Service is fully initialized before Run() is called
//   - Run() is called at most once per Service instance
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Description
	//
	// Starts the HTTP server on the configured address. This method
	// blocks until SIGINT/SIGTERM arrives (in-flight requests are
	// drained) or the listener fails.
	//
	// # Inputs
	//
	// None (configuration provided at construction time).
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or shut down cleanly
	//
	// # Examples
	//
	//   if err := svc.Run(); err != nil {
	//       log.Fatalf("server error: %v", err)
	//   }
	//
	// # Limitations
	//
	//   - Blocks until the server stops
	//   - Cleanup is automatic on return
	//
	// # Assumptions
	//
	//   - Service was successfully created via New()
	//   - Address is available and not in use
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Description
	//
	// Provides access to the configured Gin router, primarily for
	// integration testing where direct HTTP calls are needed.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds catalog service configuration options.
//
// # Description
//
// Config centralizes all configuration for the catalog browse service.
// Values can be populated from CLI flags, environment variables, or
// programmatically for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults. DataDir must point at a
// directory produced by the builder (manifest.json plus a results/
// store) or New() fails.
//
// # Examples
//
//	// Minimal config (uses all defaults, serves ./dist)
//	cfg := Config{}
//
//	// Custom address and hot reload
//	cfg := Config{
//	    Addr:    ":9090",
//	    DataDir: "/var/lib/alignscope/dist",
//	    Watch:   true,
//	}
type Config struct {
	// Addr is the HTTP listen address. Default: ":8080"
	Addr string

	// DataDir is the catalog directory produced by the builder. It must
	// contain manifest.json and the results/ store. Default: "dist"
	DataDir string

	// UIDir is an optional directory of static UI assets served under
	// /ui. If empty, no UI routes are registered.
	UIDir string

	// Watch enables hot reload of the manifest when the builder
	// rewrites it. Default: false
	Watch bool

	// WatchDebounce is how long to wait after the last manifest file
	// event before reloading. Default: 500ms
	WatchDebounce time.Duration

	// EnableTracing enables OpenTelemetry span export. Off by default:
	// a local single-user browse session rarely has a collector running.
	EnableTracing bool

	// OTelEndpoint is the OpenTelemetry collector endpoint. Default:
	// the OTEL_EXPORTER_OTLP_ENDPOINT environment variable, then
	// "localhost:4317". Only used when EnableTracing is true.
	OTelEndpoint string

	// EnableMetrics enables Prometheus collector registration.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// SessionTTL is how long an untouched session survives before the
	// janitor closes it. Default: 30 minutes
	SessionTTL time.Duration

	// SweepInterval is how often the session janitor scans for idle
	// sessions. Default: 1 minute
	SweepInterval time.Duration

	// MaxSessions caps concurrent sessions. Default: 256
	MaxSessions int

	// MaxColumns caps columns per session. Default: the shared
	// per-session column cap.
	MaxColumns int

	// DebounceWindow is how long slider edits accumulate before one
	// resolution fires. Default: 500ms
	DebounceWindow time.Duration

	// FetchTimeout bounds one result payload retrieval. Default: 10s
	FetchTimeout time.Duration

	// Logger receives service logs. Default: logging.Default()
	Logger *logging.Logger
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - Manifest loading and optional hot reload via the watcher
//   - Result payload retrieval from the BadgerDB store
//   - Per-viewer session and column state
//   - HTTP routing via Gin
//   - Optional OpenTelemetry tracing
//   - Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
//
// # Limitations
//
//   - No hot-reload of configuration (the manifest hot-reloads, the
//     service config does not)
//
// # Assumptions
//
//   - The OTel collector is reachable if tracing is enabled
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	logger        *logging.Logger
	router        *gin.Engine
	catalog       *watcher.Catalog
	store         *storage.Store
	fetcher       *fetch.Adapter
	sessions      *session.Manager
	metrics       *observability.Metrics
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new catalog Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when enabled)
//  3. Initializes Prometheus metrics (when enabled)
//  4. Loads the manifest and builds the in-memory index
//  5. Opens the BadgerDB result store
//  6. Starts the session janitor
//  7. Starts the manifest watcher (when enabled)
//  8. Sets up HTTP routes with extension options
//
// If opts is nil, DefaultOptions() is used (no-op implementations).
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options for enterprise features. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run catalog service
//   - error: Non-nil if initialization fails
//
// # Examples
//
//	// Open source usage (no-op extensions)
//	cfg := Config{DataDir: "dist", Watch: true}
//	svc, err := New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// # Limitations
//
//   - A missing or malformed manifest fails construction; the server
//     never starts without a browsable catalog
//
// # Assumptions
//
//   - DataDir was produced by the builder
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	s.logger = s.config.Logger

	// Apply extension options (use defaults if nil)
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	// Initialize OpenTelemetry tracer (opt-in)
	if s.config.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	// Initialize Prometheus metrics. Registration is process-wide, so
	// reuse the existing collectors when a prior instance registered them.
	if s.config.EnableMetrics {
		if observability.DefaultMetrics == nil {
			observability.InitMetrics()
			s.logger.Info("initialized Prometheus metrics")
		}
		s.metrics = observability.DefaultMetrics
	}

	// Load the manifest and build the index
	if err := s.initCatalog(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	// Open the result payload store
	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	// Start session management
	if err := s.initSessions(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to start session manager: %w", err)
	}

	// Start the manifest watcher (optional)
	if s.config.Watch {
		if err := s.catalog.Watch(context.Background()); err != nil {
			s.logger.Warn("manifest watch failed, hot reload disabled",
				"error", err)
			// Not fatal - the loaded snapshot keeps serving
		}
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
//
// # Description
//
// Starts the HTTP server on the configured address. On SIGINT or
// SIGTERM the server stops accepting connections and drains in-flight
// requests for up to ten seconds before Run returns.
//
// # Outputs
//
//   - error: Non-nil if the server fails to start or shut down cleanly
//
// # Limitations
//
//   - Blocks until the server stops
//   - Cleanup is automatic on return
//
// # Assumptions
//
//   - Service was successfully created via New()
//   - Address is available
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    s.config.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("catalog server started",
		"addr", s.config.Addr,
		"data_dir", s.config.DataDir,
		"watch", s.config.Watch,
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Router returns the underlying Gin engine for testing.
//
// # Description
//
// Provides access to the configured Gin router for integration testing.
//
// # Outputs
//
//   - *gin.Engine: The configured router
//
// # Limitations
//
//   - Should not be used to modify routes after construction
//
// # Assumptions
//
//   - Caller will not modify the router
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
//
// # Description
//
// Applies sensible defaults for any zero-valued configuration fields.
//
// # Inputs
//
//   - cfg: User-provided configuration
//
// # Outputs
//
//   - Config: Configuration with defaults applied
func applyConfigDefaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "dist"
	}
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = 500 * time.Millisecond
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	// EnableMetrics defaults to true. A bool zero value cannot
	// distinguish unset from false, so the default wins unconditionally.
	cfg.EnableMetrics = true

	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 1 * time.Minute
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 256
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 500 * time.Millisecond
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up the OTLP trace exporter to send spans to the configured
// collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for localhost and
//     internal networks)
//
// # Assumptions
//
//   - OTel collector is reachable at the configured endpoint
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("catalog-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initCatalog loads the manifest and builds the in-memory index.
//
// # Description
//
// Creates the manifest watcher, which loads and flattens the manifest
// at construction time. Watching only begins if Config.Watch is set.
//
// # Outputs
//
//   - error: Non-nil if the manifest is missing or malformed
func (s *service) initCatalog() error {
	manifestPath := filepath.Join(s.config.DataDir, builder.ManifestFileName)

	cat, err := watcher.New(manifestPath, watcher.Options{
		DebounceWindow: s.config.WatchDebounce,
		Logger:         s.logger,
		Metrics:        s.metrics,
	})
	if err != nil {
		return err
	}
	s.catalog = cat
	return nil
}

// initStore opens the BadgerDB result store and wires the fetch adapter.
//
// # Description
//
// Opens the results/ store inside DataDir. The server only reads from
// the store, so value log GC stays on its default cadence.
//
// # Outputs
//
//   - error: Non-nil if the store cannot be opened
func (s *service) initStore() error {
	cfg := storage.DefaultConfig()
	cfg.Path = filepath.Join(s.config.DataDir, builder.StoreDirName)
	cfg.Logger = s.logger.Slog()

	store, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	s.store = store
	s.fetcher = fetch.New(store)
	return nil
}

// initSessions creates the session manager and starts its idle janitor.
//
// # Outputs
//
//   - error: Non-nil if the janitor fails to start
func (s *service) initSessions() error {
	s.sessions = session.NewManager(s.catalog, s.fetcher, session.Config{
		TTL:           s.config.SessionTTL,
		SweepInterval: s.config.SweepInterval,
		MaxSessions:   s.config.MaxSessions,
		Columns: columns.Config{
			DebounceWindow: s.config.DebounceWindow,
			FetchTimeout:   s.config.FetchTimeout,
			MaxColumns:     s.config.MaxColumns,
			Logger:         s.logger,
			Metrics:        s.metrics,
		},
		Logger:  s.logger,
		Metrics: s.metrics,
	})

	return s.sessions.Start(context.Background())
}

// initRouter sets up the Gin HTTP router with all routes.
//
// # Description
//
// Creates the Gin engine, applies middleware, and registers all routes.
// ServiceOptions are passed through to enable enterprise extensions.
//
// # Limitations
//
//   - Routes are fixed after initialization
//
// # Assumptions
//
//   - Catalog, store, and sessions are initialized
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	if s.config.EnableTracing {
		s.router.Use(otelgin.Middleware("catalog-service"))
	}

	routes.SetupRoutes(s.router, s.catalog, s.fetcher, s.sessions, s.config.UIDir, s.opts)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits or on initialization failure. Closes sessions,
// stops the watcher, closes the store, and shuts down the tracer.
func (s *service) cleanup() {
	if s.sessions != nil {
		s.sessions.Close()
	}

	if s.catalog != nil {
		s.catalog.Stop()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("result store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
