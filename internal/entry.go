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

	"github.com/starford/lifeline/internal/api"
	"github.com/starford/lifeline/internal/canvas"
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/mcpserver"
	"github.com/starford/lifeline/internal/query"
	"github.com/starford/lifeline/internal/sse"
	"github.com/starford/lifeline/internal/store"
	"github.com/starford/lifeline/internal/timeline"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger. The returned LevelVar can be changed at
// runtime.
func (a *application) newLogger(w io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(a.config.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, level
}

func (a *application) openStore(ctx context.Context, logger *slog.Logger) (*store.DB, error) {
	db, err := store.Open(ctx, a.config.Store.Path,
		store.WithLogger(logger),
		store.WithWriteTimeout(a.config.Store.WriteTimeout))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func newService(db *store.DB, logger *slog.Logger, notify timeline.Notifier) *timeline.Service {
	idx := canvas.New(db, canvas.WithLogger(logger))
	ents := entity.New(db, idx, entity.WithLogger(logger))
	return timeline.New(ents, idx, query.New(ents, idx, logger), notify)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, level := app.newLogger(os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.Duration("write_timeout", cfg.Store.WriteTimeout),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := app.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(2*time.Second, logger)
	defer broker.Close()

	svc := newService(db, logger, broker)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.SQL().PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if app.configPath != "" {
		if _, statErr := os.Stat(app.configPath); statErr == nil {
			g.Go(func() error {
				if err := WatchLogLevel(gCtx, app.configPath, level, logger); err != nil {
					logger.Warn("config watcher disabled", slog.String("error", err.Error()))
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the config watcher when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Migrate brings the store to the latest schema version and reports it.
func Migrate(ctx context.Context, out io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, _ := app.newLogger(os.Stderr)

	db, err := app.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = fmt.Fprintf(out, "%s: schema version %d (latest %d)\n",
		app.config.Store.Path, db.Version(), store.Migrations.Latest())
	return err
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger, _ := app.newLogger(os.Stderr)

	db, err := app.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := mcpserver.New(newService(db, logger, nil), app.version)
	logger.Info("MCP server starting on stdio", slog.String("store_path", app.config.Store.Path))
	return srv.ServeStdio()
}
