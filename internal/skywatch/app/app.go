// Package app wires the Skywatch backend together: cache, chat manager,
// upstream data clients, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skywatch/skywatch/common/redact"
	"github.com/skywatch/skywatch/internal/skywatch/cache"
	"github.com/skywatch/skywatch/internal/skywatch/chat"
	"github.com/skywatch/skywatch/internal/skywatch/config"
	"github.com/skywatch/skywatch/internal/skywatch/gemini"
	"github.com/skywatch/skywatch/internal/skywatch/httpapi"
	"github.com/skywatch/skywatch/internal/skywatch/nasa"
	"github.com/skywatch/skywatch/internal/skywatch/spacedevs"
)

// sqlitePruneInterval is how often expired conversation rows are swept when
// the SQLite cache backend is active. Redis expires keys on its own.
const sqlitePruneInterval = 10 * time.Minute

// App is the assembled Skywatch service.
type App struct {
	config  *config.Config
	store   cache.Store
	sqlite  *cache.SQLite // non-nil only with the sqlite backend
	handler *httpapi.Server
	server  *http.Server
}

// New builds the application from resolved configuration. The cache backend
// is opened (and, for Redis, pinged) before any listener starts, so a
// misconfigured cache fails fast.
func New(cfg *config.Config) (*App, error) {
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	slog.Debug("configuration resolved", "settings", redact.Map(map[string]any{
		"http_addr":      cfg.HTTPAddr,
		"static_dir":     cfg.StaticDir,
		"session_ttl":    cfg.SessionTTL.String(),
		"cache_backend":  cfg.Cache.Backend,
		"secret_key":     cfg.SecretKey,
		"gemini_api_key": cfg.Gemini.APIKey,
		"nasa_api_key":   cfg.NASA.APIKey,
	}))

	app := &App{config: cfg}

	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		slog.Info("opening redis cache", "addr", cfg.Cache.RedisAddr, "db", cfg.Cache.RedisDB)
		store := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("app: redis unreachable: %w", err)
		}
		app.store = store
	case config.CacheBackendSQLite:
		slog.Info("opening sqlite cache", "path", cfg.Cache.SQLitePath)
		store, err := cache.NewSQLite(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite cache: %w", err)
		}
		app.store = store
		app.sqlite = store
	default:
		return nil, fmt.Errorf("app: unknown cache backend %q", cfg.Cache.Backend)
	}

	backend := gemini.New(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
	})
	manager := chat.NewManager(app.store, backend, cfg.SessionTTL)

	space := spacedevs.New(spacedevs.Config{
		LaunchBaseURL: cfg.SpaceDevs.LaunchBaseURL,
		NewsBaseURL:   cfg.SpaceDevs.NewsBaseURL,
	})
	nasaClient := nasa.New(nasa.Config{
		APIKey:         cfg.NASA.APIKey,
		BaseURL:        cfg.NASA.BaseURL,
		FireballMapURL: cfg.NASA.FireballMapURL,
	})

	app.handler = httpapi.New(httpapi.Config{
		SecretKey:        cfg.SecretKey,
		StaticDir:        cfg.StaticDir,
		SessionTTL:       cfg.SessionTTL,
		DefaultPerMinute: cfg.Limits.DefaultPerMinute,
		DefaultPerSecond: cfg.Limits.DefaultPerSecond,
		ChatSendEvery:    cfg.Limits.ChatSendEvery,
		FireballEvery:    cfg.Limits.FireballEvery,
	}, manager, space, nasaClient)

	return app, nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully. Listening is done synchronously so a port conflict is
// reported as an error rather than a log line from a goroutine.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.config.HTTPAddr, err)
	}

	a.server = &http.Server{
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if a.sqlite != nil {
		go a.pruneLoop(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}

// Stop releases resources held by the application.
func (a *App) Stop() {
	if a.store != nil {
		slog.Info("closing cache")
		if err := a.store.Close(); err != nil {
			slog.Warn("cache close", "err", err)
		}
	}
}

// pruneLoop periodically deletes expired rows from the SQLite cache.
func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(sqlitePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sqlite.PruneExpired(ctx); err != nil {
				slog.Warn("prune expired cache rows", "err", err)
			}
		}
	}
}

// setupLogging installs the process-wide slog handler.
func setupLogging(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
