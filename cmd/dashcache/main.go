package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashcache/internal/cache"
	"dashcache/internal/storage"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "", "directory for cache snapshots (empty = in-memory only)")
		metricsAddr = flag.String("metrics-addr", "127.0.0.1:9090", "listen address for /metrics and /health")
	)
	flag.Parse()

	// Signal-aware context is the root of ownership for long-lived background
	// work. When SIGINT/SIGTERM arrives, ctx is canceled and we initiate a
	// clean shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	reg := prometheus.NewRegistry()
	metrics := cache.NewMetrics(reg)

	var store storage.Store
	if *dataDir != "" {
		fs, err := storage.NewFileStore(*dataDir)
		if err != nil {
			level.Error(logger).Log("msg", "open snapshot store", "err", err)
			os.Exit(1)
		}
		store = fs
	}

	// One instance per data layer, each with its own TTL profile, capacity,
	// sweep interval, and storage key.
	widgets, err := cache.New[string](cache.Config{
		Name:            "widgets",
		DefaultTTL:      30 * time.Second,
		MaxEntries:      256,
		CleanupInterval: 10 * time.Second,
	}, store, cache.WithLogger(logger), cache.WithMetrics(metrics))
	if err != nil {
		level.Error(logger).Log("msg", "create widget cache", "err", err)
		os.Exit(1)
	}

	users, err := cache.New[map[string]string](cache.Config{
		Name:            "users",
		DefaultTTL:      10 * time.Minute,
		MaxEntries:      1024,
		CleanupInterval: time.Minute,
	}, store, cache.WithLogger(logger), cache.WithMetrics(metrics))
	if err != nil {
		level.Error(logger).Log("msg", "create user cache", "err", err)
		os.Exit(1)
	}

	analytics, err := cache.New[[]float64](cache.Config{
		Name:            "analytics",
		DefaultTTL:      5 * time.Minute,
		MaxEntries:      512,
		CleanupInterval: 30 * time.Second,
	}, store, cache.WithLogger(logger), cache.WithMetrics(metrics))
	if err != nil {
		level.Error(logger).Log("msg", "create analytics cache", "err", err)
		os.Exit(1)
	}

	defer func() {
		// Final snapshots get their own deadline; the signal ctx is already
		// canceled by the time we land here.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		widgets.Shutdown(shutdownCtx)
		users.Shutdown(shutdownCtx)
		analytics.Shutdown(shutdownCtx)
	}()

	// Warm from the previous run's snapshots before serving anything.
	widgets.LoadFromStorage(ctx)
	users.LoadFromStorage(ctx)
	analytics.LoadFromStorage(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "metrics server", "err", err)
		}
	}()
	defer srv.Close()

	// A few representative operations so the metrics endpoint has something
	// to show when running the binary standalone.
	widgets.Set("widget_1", `{"type":"chart"}`)
	widgets.Set("widget_2", `{"type":"table"}`)
	users.Set("user_42", map[string]string{"name": "demo", "role": "viewer"})

	series, err := analytics.GetOrSet("daily_visits", func() ([]float64, error) {
		return []float64{120, 340, 280}, nil
	})
	if err != nil {
		level.Error(logger).Log("msg", "compute analytics", "err", err)
	} else {
		level.Info(logger).Log("msg", "analytics ready", "points", len(series))
	}

	if n, err := widgets.InvalidatePattern("^widget_"); err == nil {
		level.Info(logger).Log("msg", "invalidated widgets", "count", n)
	}

	stats := users.Stats()
	level.Info(logger).Log("msg", "user cache stats", "size", stats.Size, "max", stats.MaxEntries)

	level.Info(logger).Log("msg", "dashcache running", "metrics", *metricsAddr)
	<-ctx.Done()
	level.Info(logger).Log("msg", "shutting down")
}
