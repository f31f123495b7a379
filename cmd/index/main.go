// Command index is the texsearch CLI: -init seeds an empty snapshot,
// -update runs the reconciler to a fixed point, and -query runs a
// line-oriented stdio search loop, one request JSON per line and one
// response JSON per line, flushed immediately. Exactly one mode flag is
// expected per invocation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/texsearch/texsearch/internal/analytics"
	"github.com/texsearch/texsearch/internal/docstore"
	"github.com/texsearch/texsearch/internal/ledger"
	"github.com/texsearch/texsearch/internal/metrictree"
	"github.com/texsearch/texsearch/internal/orchestrator"
	"github.com/texsearch/texsearch/internal/reconciler"
	"github.com/texsearch/texsearch/internal/snapshot"
	"github.com/texsearch/texsearch/pkg/config"
	"github.com/texsearch/texsearch/pkg/health"
	"github.com/texsearch/texsearch/pkg/kafka"
	"github.com/texsearch/texsearch/pkg/logger"
	"github.com/texsearch/texsearch/pkg/metrics"
	"github.com/texsearch/texsearch/pkg/postgres"
	pkgredis "github.com/texsearch/texsearch/pkg/redis"
	"github.com/texsearch/texsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	initFlag := flag.Bool("init", false, "write an empty index snapshot, after confirmation")
	updateFlag := flag.Bool("update", false, "run the update reconciler to a fixed point")
	queryFlag := flag.Bool("query", false, "run the line-oriented stdio query loop")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	switch {
	case *initFlag:
		runInit(cfg)
	case *updateFlag:
		runUpdate(cfg)
	case *queryFlag:
		runQuery(cfg)
	default:
		fmt.Fprintln(os.Stderr, "exactly one of -init, -update, -query is required")
		os.Exit(1)
	}
}

func runInit(cfg *config.Config) {
	if snapshot.Exists(cfg.Store.SnapshotPath) {
		fmt.Printf("a snapshot already exists at %s; overwrite with an empty index? [y/n] ", cfg.Store.SnapshotPath)
	} else {
		fmt.Printf("write a new empty index snapshot to %s? [y/n] ", cfg.Store.SnapshotPath)
	}
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if answer := trimNewline(answer); answer != "y" && answer != "Y" {
		fmt.Println("aborted")
		return
	}

	st := snapshot.State{LastUpdateSeq: 0, Tree: metrictree.New()}
	if err := snapshot.Save(cfg.Store.SnapshotPath, st); err != nil {
		slog.Error("failed to write initial snapshot", "error", err)
		os.Exit(1)
	}
	slog.Info("initialized empty index snapshot", "path", cfg.Store.SnapshotPath)
}

func runUpdate(cfg *config.Config) {
	fileLock := flock.New(cfg.Store.LockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		slog.Error("failed to acquire update lock", "path", cfg.Store.LockPath, "error", err)
		os.Exit(1)
	}
	if !locked {
		slog.Error("another update is already in progress", "path", cfg.Store.LockPath)
		os.Exit(1)
	}
	defer fileLock.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs := docstore.New(docstore.Config{
		BaseURL:         cfg.DocStore.BaseURL,
		PreprocessorURL: cfg.DocStore.PreprocessorURL,
		Timeout:         cfg.DocStore.Timeout,
	})

	led := newLedger(cfg)
	events := newAnalyticsCollector(ctx, cfg)
	if events != nil {
		defer events.Close()
	}

	rec, err := reconciler.New(docs, cfg.Store.SnapshotPath, led, events)
	if err != nil {
		slog.Error("failed to initialize reconciler", "error", err)
		os.Exit(1)
	}

	startingSeq := rec.LastUpdateSeq()
	slog.Info("running update reconciler to fixed point", "starting_seq", startingSeq)
	if err := rec.RunToFixedPoint(ctx); err != nil {
		slog.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("update reconciler reached fixed point", "last_update_seq", rec.LastUpdateSeq())

	if rec.LastUpdateSeq() != startingSeq {
		invalidateQueryCache(ctx, cfg)
	}
}

// invalidateQueryCache drops every cached search response once a reconcile
// run has actually advanced the tree, so a -query process's ResultCache
// doesn't keep serving pre-reconciliation results under their old keys.
// -update and -query are separate CLI invocations with no shared memory, so
// this has to go through Redis rather than an in-process cache handle.
func invalidateQueryCache(ctx context.Context, cfg *config.Config) {
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, stale query cache entries will expire on their own TTL", "error", err)
		return
	}
	defer client.Close()

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := client.FlushByPattern(flushCtx, orchestrator.CacheKeyPrefix+"*")
	if err != nil {
		slog.Warn("failed to invalidate query cache after reconciliation", "error", err)
		return
	}
	slog.Info("invalidated stale query cache entries", "count", n)
}

func runQuery(cfg *config.Config) {
	if !snapshot.Exists(cfg.Store.SnapshotPath) {
		fmt.Fprintf(os.Stderr, "no snapshot at %s; run -init first\n", cfg.Store.SnapshotPath)
		os.Exit(1)
	}
	st, err := snapshot.Load(cfg.Store.SnapshotPath)
	if err != nil {
		slog.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	}
	slog.Info("loaded snapshot for queries", "last_update_seq", st.LastUpdateSeq, "tree_size", st.Tree.Size())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs := docstore.New(docstore.Config{
		BaseURL:         cfg.DocStore.BaseURL,
		PreprocessorURL: cfg.DocStore.PreprocessorURL,
		Timeout:         cfg.DocStore.Timeout,
	})

	var redisClient *pkgredis.Client
	if rc, err := pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		redisClient = rc
		defer redisClient.Close()
	}
	cache := orchestrator.NewResultCache(redisClient, cfg.Redis)

	events := newAnalyticsCollector(ctx, cfg)
	if events != nil {
		defer events.Close()
	}

	orch := orchestrator.New(st.Tree, docs, cache, events)

	if cfg.Metrics.Enabled {
		m, shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
		go pollBreakerStates(ctx, m, docs.Breakers())
	}
	shutdownHealth := startHealthServer(cfg, redisClient)
	defer shutdownHealth(context.Background())

	runQueryLoop(ctx, orch)
}

// startHealthServer runs a small liveness/readiness HTTP sidecar alongside
// the stdio query loop, one port above the metrics port, so an operator can
// probe the process even though -query's main protocol is stdio-only.
func startHealthServer(cfg *config.Config, redisClient *pkgredis.Client) func(context.Context) error {
	checker := health.NewChecker()
	checker.Register("snapshot", func(ctx context.Context) health.ComponentHealth {
		if snapshot.Exists(cfg.Store.SnapshotPath) {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "snapshot file missing"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port+1),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("health sidecar listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health sidecar error", "error", err)
		}
	}()
	return server.Shutdown
}

// runQueryLoop is the stdio protocol's core: read one request line, parse
// it, hand it to the orchestrator, write exactly one response line, flush.
// A malformed line produces a bare {"code":400} response rather than
// aborting the loop, so one bad line never ends the session.
func runQueryLoop(ctx context.Context, orch *orchestrator.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	writer := bufio.NewWriter(os.Stdout)
	requestSeq := 0

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		requestSeq++
		requestID := fmt.Sprintf("query-%d", requestSeq)

		req, err := orchestrator.ParseRequest(line)
		var resp orchestrator.Response
		if err != nil {
			resp = orchestrator.Response{Code: 400}
		} else {
			resp = orch.Handle(ctx, req, requestID)
		}
		writeResponse(writer, resp)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("query loop stdin read error", "error", err)
	}
}

func writeResponse(w *bufio.Writer, resp orchestrator.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		data = []byte(`{"code":500}`)
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}

func newLedger(cfg *config.Config) *ledger.Ledger {
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, reconciliation ledger disabled", "error", err)
		return ledger.New(nil)
	}
	return ledger.New(db)
}

func newAnalyticsCollector(ctx context.Context, cfg *config.Config) *analytics.Collector {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	collector := analytics.NewCollector(producer, 10000)
	collector.Start(ctx)
	return collector
}

// pollBreakerStates periodically exports each docstore circuit breaker's
// state to the circuit_breaker_state gauge, since breaker state otherwise
// only changes inside docstore.Client's own call paths with no hook back
// into the metrics registry.
func pollBreakerStates(ctx context.Context, m *metrics.Metrics, breakers []*resilience.CircuitBreaker) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, b := range breakers {
				m.CircuitBreakerState.WithLabelValues(b.Name()).Set(b.StateValue())
			}
		case <-ctx.Done():
			return
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
