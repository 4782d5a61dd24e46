// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/conversation"
	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/ragservice"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vectorstore"
)

// runtime holds the components shared by the HTTP and MCP entry points.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	vault  *storage.FS
	db     *vectorstore.DB
	sync   *index.Synchronizer
	svc    *ragservice.Service
}

// bootstrap wires storage, the vector store, the synchronizer and the
// answering pipeline. onIndex, when set, receives every index change.
func bootstrap(app *application, onIndex index.EventCallback) (*runtime, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("generation_provider", cfg.Generation.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	vault, err := storage.NewFS(cfg.Vault.Path, append(cfg.Vault.StorageOptions(), storage.WithLogger(logger))...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	embedder := app.embedder
	if embedder == nil {
		if embedder, err = embedding.New(cfg.Embedding.Embedder()); err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}
	generator := app.generator
	if generator == nil {
		if generator, err = llm.New(cfg.Generation.Generator()); err != nil {
			return nil, fmt.Errorf("init generator: %w", err)
		}
	}

	db, err := vectorstore.Open(cfg.SQLite.Path, embedder)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	syncOpts := []index.SyncOption{
		index.WithMaxChunkSize(cfg.Chunker.MaxSize),
		index.WithLogger(logger),
	}
	if onIndex != nil {
		syncOpts = append(syncOpts, index.WithCallback(onIndex))
	}
	syncer := index.NewSynchronizer(db, vault, syncOpts...)

	retriever := retrieval.New(db,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithDistanceThreshold(cfg.Retrieval.DistanceThreshold),
	)
	composer := answer.New(retriever, generator, logger)
	svc := ragservice.New(vault, syncer, retriever, composer, conversation.NewManager(cfg.Conversation.Window))

	return &runtime{cfg: cfg, logger: logger, vault: vault, db: db, sync: syncer, svc: svc}, nil
}

// initialSync brings the index in line with the vault before serving.
func (rt *runtime) initialSync(ctx context.Context) {
	rep, err := rt.svc.Reindex(ctx, false)
	if err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		return
	}
	rt.logger.Info("initial sync complete",
		slog.Int("indexed", rep.Indexed),
		slog.Int("skipped", rep.Skipped),
		slog.Int("removed", rep.Removed),
		slog.Int("failed", rep.Failed))
}

// startWatcher registers the vault watch and forwards changes on g. The
// watch is in place when it returns, so edits made during the startup scan
// queue up in the returned channel.
func (rt *runtime) startWatcher(ctx context.Context, g *errgroup.Group) <-chan index.Event {
	events := make(chan index.Event, rt.cfg.Sync.EventBuffer)
	w, err := index.NewWatcher(rt.vault.Root(), rt.logger)
	if err != nil {
		rt.logger.Error("watcher failed", slog.String("error", err.Error()))
		close(events)
		return events
	}
	g.Go(func() error {
		defer close(events)
		if err := w.Run(ctx, events); err != nil {
			rt.logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})
	return events
}

// startSync applies watcher events through the debounced synchronizer on g.
func (rt *runtime) startSync(ctx context.Context, g *errgroup.Group, events <-chan index.Event) {
	g.Go(func() error {
		return rt.sync.Run(ctx, events, rt.cfg.Sync.Debounce)
	})
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	// SSE broker.
	broker := sse.NewBroker(app.config.Sync.SSEThrottle)
	defer broker.Close()

	rt, err := bootstrap(app, broker.IndexChanged)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	cfg := rt.cfg
	logger := rt.logger

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: newHTTPHandler(rt.svc, cfg, broker),
	}

	g, gCtx := errgroup.WithContext(ctx)

	events := rt.startWatcher(gCtx, g)

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	rt.initialSync(gCtx)

	// Changes queued during the scan are applied from here on.
	rt.startSync(gCtx, g, events)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP protocol on stdin/stdout. Logs go to stderr unless
// WithLogOutput says otherwise, since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	rt, err := bootstrap(app, nil)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	srv := mcpserver.New(rt.svc, app.version)

	g, gCtx := errgroup.WithContext(ctx)
	events := rt.startWatcher(gCtx, g)

	rt.initialSync(gCtx)
	rt.startSync(gCtx, g, events)

	g.Go(func() error {
		rt.logger.Info("Starting MCP server on stdio")
		if err := srv.Serve(gCtx, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return errShutdown
	})

	g.Go(func() error {
		waitForShutdown(gCtx, rt.logger)
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		rt.logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// errShutdown cancels the errgroup context once a server has stopped.
var errShutdown = errors.New("shutdown")

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}

func newHTTPHandler(svc *ragservice.Service, cfg *Config, broker *sse.Broker) http.Handler {
	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; GET /api/events shares the auth middleware.
	var sseHandler http.Handler
	if broker != nil {
		sseHandler = broker
	}
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, sseHandler))

	return r
}
