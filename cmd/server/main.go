package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-instructor/internal/activity"
	"github.com/p-n-ai/pai-instructor/internal/dashboard"
	"github.com/p-n-ai/pai-instructor/internal/notify"
	"github.com/p-n-ai/pai-instructor/internal/platform/cache"
	"github.com/p-n-ai/pai-instructor/internal/platform/config"
	"github.com/p-n-ai/pai-instructor/internal/platform/database"
	"github.com/p-n-ai/pai-instructor/internal/prefs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	app, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      app.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "lms", cfg.LMS.BaseURL, "prefs", cfg.Prefs.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	app.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newApp connects the configured backends and builds the dashboard. The
// returned cleanup closes every connection it opened; on error nothing is
// left open.
func newApp(ctx context.Context, cfg *config.Config) (*dashboard.Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := []dashboard.Option{
		dashboard.WithHTTPClient(&http.Client{Timeout: cfg.LMS.Timeout}),
		dashboard.WithHub(notify.NewHub(notify.WithTTL(cfg.UI.NotificationTTL))),
	}

	var db *database.DB
	if cfg.NeedsDatabase() {
		var err error
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, db.Close)
		if err := db.EnsureSchema(ctx, prefs.Schema, activity.Schema); err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts, dashboard.WithReadiness("database", db.HealthCheck))
	}

	switch cfg.Prefs.Backend {
	case config.BackendRedis:
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect cache: %w", err)
		}
		closers = append(closers, func() { c.Close() })
		opts = append(opts,
			dashboard.WithPrefs(c.Prefs(cfg.Prefs.KeyPrefix)),
			dashboard.WithReadiness("cache", c.HealthCheck),
		)
	case config.BackendPostgres:
		store, err := prefs.NewPostgresStore(db.Pool)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts, dashboard.WithPrefs(store))
	default:
		slog.Warn("preferences are kept in memory and lost on restart")
	}

	if cfg.Activity.Enabled {
		opts = append(opts, dashboard.WithActivity(activity.NewPostgresLogger(db.Pool)))
	}

	return dashboard.New(cfg.LMS.BaseURL, opts...), cleanup, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
