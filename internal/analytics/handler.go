package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/texsearch/texsearch/pkg/logger"
)

// HistoryFunc loads persisted snapshots, newest first, since the given
// time, capped at limit. It is satisfied by aggregator.Store.History; kept
// as a plain function type here (rather than an imported interface) so
// this package never has to import the Postgres-backed aggregator.Store
// package, which already imports this one for AggregatedStats.
type HistoryFunc func(ctx context.Context, since time.Time, limit int) (any, error)

type Handler struct {
	aggregator *Aggregator
	history    HistoryFunc
	logger     *slog.Logger
}

// NewHandler builds a Handler that only serves the current in-memory
// aggregate; History responds 503 until a history-capable handler is
// built with NewHandlerWithHistory.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     logger.WithComponent("analytics-handler"),
	}
}

// NewHandlerWithHistory builds a Handler whose History endpoint is backed
// by history, typically a closure over an *aggregator.Store's History method.
func NewHandlerWithHistory(aggregator *Aggregator, history HistoryFunc) *Handler {
	h := NewHandler(aggregator)
	h.history = history
	return h
}

// Stats serves the current in-memory aggregate: total searches, latency
// percentiles, cache hit/miss counts, zero-result and timeout counts,
// reconcile totals, and top queries since process start.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

// History serves persisted snapshots, newest first, for dashboards that
// want a trend line rather than the single current-process aggregate.
// Query params: since (RFC3339, default: unbounded), limit (default 100).
// Responds 503 if no Postgres-backed store was configured.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, `{"error":"analytics history unavailable: no store configured"}`, http.StatusServiceUnavailable)
		return
	}

	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, `{"error":"since must be RFC3339"}`, http.StatusBadRequest)
			return
		}
		since = parsed
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	points, err := h.history(r.Context(), since, limit)
	if err != nil {
		h.logger.Error("failed to load analytics history", "error", err)
		http.Error(w, `{"error":"failed to load history"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(points); err != nil {
		h.logger.Error("failed to write analytics history response", "error", err)
	}
}
