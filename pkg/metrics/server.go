package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/texsearch/texsearch/pkg/logger"
)

// StartServer registers every collector (via New, which panics on a second
// call in the same process — callers must invoke this at most once) and
// serves them on /metrics alongside a small landing page pointing at it. It
// returns the registered Metrics so the caller can update gauges (e.g.
// circuit breaker state, via cmd/index's pollBreakerStates) that live
// outside the HTTP request path.
func StartServer(port int) (m *Metrics, shutdown func(context.Context) error) {
	m = New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>texsearch index process</h1>`+
			`<p>query orchestrator (C6), reconciler (C5), and docstore client metrics.</p>`+
			`<p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log := logger.WithComponent("metrics-server")
	go func() {
		log.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	return m, server.Shutdown
}
