// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search-analytics events from Kafka, aggregates them in memory
// (total searches, latency percentiles, cache hit/miss counts, timeout and
// reconcile-failure counts, top queries),
// and exposes an HTTP API at GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/texsearch/texsearch/internal/analytics"
	analyticsaggregator "github.com/texsearch/texsearch/internal/analytics/aggregator"
	"github.com/texsearch/texsearch/pkg/config"
	"github.com/texsearch/texsearch/pkg/health"
	"github.com/texsearch/texsearch/pkg/kafka"
	"github.com/texsearch/texsearch/pkg/logger"
	"github.com/texsearch/texsearch/pkg/metrics"
	"github.com/texsearch/texsearch/pkg/middleware"
	"github.com/texsearch/texsearch/pkg/postgres"
)

// main boots the standalone analytics service: it creates a Kafka consumer for
// analytics events, starts the in-memory aggregator, registers a health checker,
// and serves the HTTP API. Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Kafka consumer for analytics events. The handler closes over the
	// aggregator variable so events land in the same aggregator that the
	// HTTP API reads from.
	var aggregator *analytics.Aggregator
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, func(ctx context.Context, key []byte, value []byte) error {
		return analytics.HandleEvent(aggregator)(ctx, key, value)
	})
	aggregator = analytics.NewAggregator(consumer)

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	// Periodically persist the in-memory aggregate to Postgres so a restart
	// doesn't lose historical stats entirely (the in-memory aggregator itself
	// only ever reflects events seen since process start).
	analyticsHandler := analytics.NewHandler(aggregator)
	if db, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("postgres unavailable, periodic analytics snapshots disabled", "error", err)
	} else {
		store := analyticsaggregator.NewStore(db)
		// cmd/analytics runs standalone from the reconciler, so it has no
		// live last_update_seq to tag snapshots with.
		store.StartPeriodicSave(ctx, aggregator, 5*time.Minute, nil)
		analyticsHandler = analytics.NewHandlerWithHistory(aggregator, func(ctx context.Context, since time.Time, limit int) (any, error) {
			return store.History(ctx, since, limit)
		})
	}

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
