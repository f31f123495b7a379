// Package aggregator persists aggregated texsearch analytics snapshots to
// PostgreSQL and replays them back out as a trend line for the dashboard's
// history endpoint — the in-memory Aggregator only ever knows about events
// seen since process start, so this is the only place stats from before
// the last restart come from.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/texsearch/texsearch/internal/analytics"
	"github.com/texsearch/texsearch/pkg/logger"
	"github.com/texsearch/texsearch/pkg/postgres"
)

// Store persists aggregated analytics snapshots in PostgreSQL, indexed by
// reconciler sequence so a snapshot can be correlated back to the index
// state it was measured against.
//
// It requires an `analytics_snapshots` table:
//
//	CREATE TABLE analytics_snapshots (
//	    id             BIGSERIAL PRIMARY KEY,
//	    data           JSONB NOT NULL,
//	    last_update_seq BIGINT NOT NULL DEFAULT 0,
//	    captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a new analytics persistence store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("analytics-store"),
	}
}

// SaveSnapshot persists a stats snapshot to the database, tagged with the
// reconciler sequence the aggregator's counters were most recently
// reconciled through so a dashboard can plot "searches per doc indexed".
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats, lastUpdateSeq int64) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, last_update_seq, captured_at) VALUES ($1, $2, $3)`,
		data, lastUpdateSeq, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"total_docs_reconciled", stats.TotalReconciled,
		"last_update_seq", lastUpdateSeq,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot from the database.
// Returns nil, nil if no snapshots exist yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// HistoryPoint pairs a persisted snapshot with the reconciler sequence and
// wall-clock time it was captured at, the shape the analytics HTTP API's
// history endpoint hands back for client-side trend rendering.
type HistoryPoint struct {
	Stats         analytics.AggregatedStats `json:"stats"`
	LastUpdateSeq int64                     `json:"last_update_seq"`
	CapturedAt    time.Time                 `json:"captured_at"`
}

// History returns the last limit snapshots captured at or after since,
// newest first. A zero since returns the last limit snapshots regardless
// of age.
func (s *Store) History(ctx context.Context, since time.Time, limit int) ([]HistoryPoint, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data, last_update_seq, captured_at FROM analytics_snapshots
		 WHERE captured_at >= $1 ORDER BY captured_at DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var points []HistoryPoint
	for rows.Next() {
		var data []byte
		var point HistoryPoint
		if err := rows.Scan(&data, &point.LastUpdateSeq, &point.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal(data, &point.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		points = append(points, point)
	}

	return points, rows.Err()
}

// StartPeriodicSave launches a goroutine that periodically snapshots the
// aggregator's current stats to the database, tagged with seqFn's current
// value at save time. seqFn may be nil, in which case every snapshot is
// tagged with sequence 0.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration, seqFn func() int64) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		seq := func() int64 {
			if seqFn == nil {
				return 0
			}
			return seqFn()
		}

		for {
			select {
			case <-ticker.C:
				stats := agg.Stats()
				if err := s.SaveSnapshot(ctx, stats, seq()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				// Final snapshot on shutdown.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				stats := agg.Stats()
				if err := s.SaveSnapshot(shutdownCtx, stats, seq()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
