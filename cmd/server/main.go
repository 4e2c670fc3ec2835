package main

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

	"github.com/p-n-ai/medq/internal/api"
	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/events"
	"github.com/p-n-ai/medq/internal/importer"
	"github.com/p-n-ai/medq/internal/platform/cache"
	"github.com/p-n-ai/medq/internal/platform/config"
	"github.com/p-n-ai/medq/internal/platform/database"
	"github.com/p-n-ai/medq/internal/quiz"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	for _, run := range a.background {
		go func() {
			if err := run(ctx); err != nil {
				slog.Error("background task stopped", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend, "cache", cfg.Cache.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from config. Unknown levels fall back
// to info.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is the wired service graph.
type app struct {
	handler    http.Handler
	content    *content.Service
	background []func(ctx context.Context) error
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := make(map[string]api.Checker)

	var (
		store     content.Store
		responses quiz.Store
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, err := database.New(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			Migrate:  cfg.Database.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db

		if store, err = content.NewPostgresStore(db.Pool, cfg.Store.Timeout); err != nil {
			a.Close()
			return nil, err
		}
		if responses, err = quiz.NewPostgresStore(db.Pool); err != nil {
			a.Close()
			return nil, err
		}
	default:
		store = content.NewMemoryStore()
		responses = quiz.NewMemoryStore()
	}

	hub := events.NewHub()
	var notifier content.Notifier = hub
	var limiter quiz.Limiter = quiz.NewMemoryLimiter(cfg.Quiz.DailyLimit)
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		checks["cache"] = c

		broker := events.NewRedisBroker(c.Client, cfg.Events.Channel, hub)
		notifier = broker
		limiter = quiz.NewRedisLimiter(c.Client, cfg.Quiz.DailyLimit)
		a.background = append(a.background, func(ctx context.Context) error {
			return broker.Run(ctx, nil)
		})
	}

	svc := content.NewService(content.ServiceConfig{
		Store:    store,
		Notifier: notifier,
		MaxBatch: cfg.Content.MaxBatch,
	})
	checks["store"] = svc
	a.content = svc

	if cfg.Content.SeedPath != "" {
		if err := seed(ctx, svc, cfg.Content.SeedPath); err != nil {
			a.Close()
			return nil, err
		}
	}

	grader := quiz.NewService(quiz.Config{Source: svc, Store: responses, Limiter: limiter})
	a.handler = api.NewMux(api.Config{
		Content: svc,
		Quiz:    grader,
		Events:  hub,
		Admin:   api.RequireToken(cfg.Admin.Token),
		Checks:  checks,
	})
	return a, nil
}

// seed imports path, leaving records that already exist untouched.
func seed(ctx context.Context, svc *content.Service, path string) error {
	b, err := importer.LoadPath(path)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	res, err := svc.Import(ctx, b, true)
	if err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	slog.Info("seed applied", "path", path, "inserted", res.Inserted, "skipped", res.Skipped)
	return nil
}
