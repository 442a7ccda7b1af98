// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/orgview/internal/api"
	"github.com/starford/orgview/internal/docservice"
	"github.com/starford/orgview/internal/events"
	"github.com/starford/orgview/internal/index"
	"github.com/starford/orgview/internal/mcpserver"
	"github.com/starford/orgview/internal/projects"
	"github.com/starford/orgview/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// openOrg prepares the org root, its storage and an initially synced index.
func openOrg(cfg *Config, logger *slog.Logger) (*storage.FS, *index.DB, error) {
	if err := os.MkdirAll(cfg.Org.Root, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create org root: %w", err)
	}
	store, err := storage.NewFS(cfg.Org.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return store, db, nil
}

// newServerRouter builds the root chi router: health probes, the REST API
// under /api and the WebSocket change feed at /ws.
func newServerRouter(cfg *Config, svc *docservice.Service, broker *events.Broker, logger *slog.Logger) http.Handler {
	h := api.NewHandler(svc, projects.NewBrowser(cfg.Org.Root), broker.ClientCount)
	apiRouter := api.NewRouter(h, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
	})
	ws := events.NewWSHandler(broker, logger, events.WSSettings{
		WriteTimeout: cfg.Events.WriteTimeout,
		PingInterval: cfg.Events.PingInterval,
		ReadTimeout:  cfg.Events.ReadTimeout,
	})

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Count(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	r.With(api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token)).Get("/ws", ws.ServeHTTP)

	return r
}

// Run starts the server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg.App.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("org_root", cfg.Org.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, db, err := openOrg(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := events.NewBroker(cfg.Events.GraphThrottle)
	defer broker.Close()

	svc := docservice.NewService(store, db)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: newServerRouter(cfg, svc, broker, logger),
	}

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher feeds the change broker; API writes reach clients this way too.
	g.Go(func() error {
		if err := index.Watch(gCtx, db, store, cfg.Org.Root, logger, broker.PublishChange); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Close streams first so Shutdown does not wait on them.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin/stdout. Logs go to stderr since
// stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg.App.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	store, db, err := openOrg(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("MCP server starting", slog.String("org_root", cfg.Org.Root))
	if err := mcpserver.New(docservice.NewService(store, db)).ServeStdio(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
