// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/echoes/internal/api"
	"github.com/starford/echoes/internal/catalog"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/mcpserver"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/session"
	"github.com/starford/echoes/internal/sse"
)

// core holds the engine shared by every surface.
type core struct {
	logger *slog.Logger
	store  *catalog.Store
	svc    *entryservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newBackend(cfg RemoteConfig, client *remotesync.Client) (remotesync.Backend, error) {
	switch cfg.Kind {
	case RemoteKindHTTP:
		return remotesync.NewHTTPStore(client, cfg.URL)
	default:
		return remotesync.NewGitHub(client, remotesync.GitHubConfig{
			APIURL: cfg.APIURL,
			Owner:  cfg.Owner,
			Repo:   cfg.Repo,
			Path:   cfg.Path,
			Branch: cfg.Branch,
		}), nil
	}
}

// buildCore wires storage, catalog and entry service and performs the
// initial catalog load. A failed load is logged; the fallback stays visible.
func (a *application) buildCore(ctx context.Context, logger *slog.Logger) (*core, error) {
	cfg := a.config

	client := remotesync.NewClient(remotesync.ClientConfig{
		Timeout:           cfg.Remote.Timeout,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		UserAgent:         cfg.Remote.UserAgent,
	})
	backend, err := newBackend(cfg.Remote, client)
	if err != nil {
		return nil, fmt.Errorf("init remote: %w", err)
	}

	var source catalog.Source = backend
	if cfg.Catalog.URL != "" {
		source = catalog.NewHTTPSource(client, cfg.Catalog.URL)
	}

	fallback := catalog.DefaultFallback()
	if cfg.Catalog.FallbackPath != "" {
		entries, err := catalog.LoadFallbackFile(cfg.Catalog.FallbackPath)
		switch {
		case err == nil:
			fallback = entries
		case errors.Is(err, os.ErrNotExist):
			logger.Info("fallback file not found, using built-in entries",
				slog.String("path", cfg.Catalog.FallbackPath))
		default:
			return nil, fmt.Errorf("load fallback: %w", err)
		}
	}

	store := catalog.NewStore(source, fallback, logger)

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Catalog.LoadTimeout)
	res, err := store.Load(loadCtx)
	cancel()
	if err != nil {
		logger.Warn("initial catalog load failed", slog.String("error", err.Error()))
	} else if res.Notice != "" {
		logger.Info(res.Notice, slog.String("origin", string(res.Origin)))
	}

	svc := entryservice.NewService(store, remotesync.NewSyncer(backend, logger), source,
		entryservice.Config{
			PollInterval: cfg.Publish.PollInterval,
			PollTimeout:  cfg.Publish.PollTimeout,
		}, logger)

	return &core{logger: logger, store: store, svc: svc}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_kind", cfg.Remote.Kind),
		slog.String("catalog_url", cfg.Catalog.URL),
		slog.String("fallback_path", cfg.Catalog.FallbackPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := app.buildCore(ctx, logger)
	if err != nil {
		return err
	}

	// SSE broker; catalog changes are broadcast to every client.
	broker := sse.NewBroker(cfg.Events.CatalogThrottle)
	defer broker.Close()
	stopCatalog := c.store.Subscribe(func(rev uint64) {
		broker.PublishCatalogUpdate(rev, c.store.Len())
	})
	defer stopCatalog()

	sessions := session.NewManager(c.svc, broker, cfg.Session.IdleTimeout, logger)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"origin":   c.store.Origin(),
			"entries":  c.store.Len(),
			"sessions": sessions.Len(),
		})
	})

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(c.svc, sessions, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the fallback file while no remote catalog is loaded.
	if cfg.Catalog.FallbackPath != "" {
		g.Go(func() error {
			if err := catalog.WatchFallback(gCtx, c.store, cfg.Catalog.FallbackPath, logger); err != nil {
				logger.Warn("fallback watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Expire idle sessions.
	g.Go(func() error {
		return sessions.Run(gCtx)
	})

	// Start HTTP server.
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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Session streams end once their sessions close.
		sessions.CloseAll()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the janitor and watcher stop.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	c, err := app.buildCore(ctx, logger)
	if err != nil {
		return err
	}

	logger.Info("MCP server starting on stdio",
		slog.Int("entries", c.store.Len()),
		slog.String("origin", string(c.store.Origin())))
	return mcpserver.New(c.svc, app.cred).ServeStdio()
}

// AddEntry commits one entry and, when wait is set, blocks until the
// published catalog shows it.
func AddEntry(ctx context.Context, draft models.Draft, wait bool, opts ...Option) (*entryservice.AddResult, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return nil, err
	}
	logger := app.newLogger()

	c, err := app.buildCore(ctx, logger)
	if err != nil {
		return nil, err
	}

	res, err := c.svc.AddEntry(ctx, draft, app.cred)
	if err != nil {
		return nil, err
	}
	if wait {
		if err := c.svc.WaitVisible(ctx, res.Entry.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}
