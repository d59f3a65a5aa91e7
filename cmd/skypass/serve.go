package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/skypass/internal/api"
	"github.com/star/skypass/internal/config"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/observability"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/schedule"
	"github.com/star/skypass/internal/stream"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

// catalogCheckInterval is how often the catalog age is compared against
// the configured maximum.
const catalogCheckInterval = 5 * time.Minute

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, pass schedule and tracking streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a.cfg, a.logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	store := tle.NewStore()
	cache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)

	// Attempt to load cached TLE data on startup.
	if ds, err := cache.LoadDataset(logger); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	} else {
		store.Set(ds)
		metrics.SetCatalog(len(ds.Satellites), ds.FetchedAt)
		logger.Info("loaded TLE data from cache", "count", len(ds.Satellites), "cached_at", ds.FetchedAt.Format(time.RFC3339))
	}

	var fetcher *tle.Fetcher
	if cfg.TLE.EnableFetch {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger.With("component", "tle"), cfg.TLE.ExtraSourceURLs...)
		go refreshCatalog(ctx, fetcher, store, cache, cfg.TLE.MaxAge, logger)
	}

	prop := propagation.NewPropagator(store, cfg.Propagation, logger)

	stations := make([]transform.Observer, len(cfg.Stations))
	for i, s := range cfg.Stations {
		stations[i] = s.Observer()
	}
	sched := schedule.New(cfg.Schedule, cfg.Search, stations, store, logger.With("component", "schedule"))
	go sched.Start(ctx)

	streamHandler := stream.NewHandler(prop, sched, store, cfg.Search, cfg.Stream, logger)

	srv := api.NewServer(cfg.HTTPAddr, logger, cfg.Auth, api.Deps{
		Store:      store,
		Propagator: prop,
		Fetcher:    fetcher,
		Cache:      cache,
		Schedule:   sched,
		Stream:     streamHandler,
		Search:     cfg.Search,
		Refraction: cfg.Refraction,
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"auth_enabled", cfg.Auth.Enabled,
			"tle_fetch_enabled", cfg.TLE.EnableFetch,
			"stations", len(stations),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// refreshCatalog fetches a catalog whenever none is loaded or the loaded
// one is older than maxAge, until ctx is done.
func refreshCatalog(ctx context.Context, fetcher *tle.Fetcher, store *tle.Store, cache *tle.Cache, maxAge time.Duration, logger *slog.Logger) {
	check := func() {
		if age := store.AgeSeconds(); age >= 0 && age < maxAge.Seconds() {
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		ds, err := fetcher.Refresh(fetchCtx, store, cache)
		if err != nil {
			metrics.RecordFetchError()
			logger.Warn("scheduled catalog fetch failed", "source", fetcher.SourceURL(), "error", err)
			return
		}
		metrics.SetCatalog(len(ds.Satellites), ds.FetchedAt)
	}

	check()
	ticker := time.NewTicker(catalogCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}
