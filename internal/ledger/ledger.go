// Package ledger is a best-effort, Postgres-backed audit trail of per-
// document reconciliation outcomes: which document, at which change
// sequence, ended up indexed, tombstoned, or failed. It is supplemental
// operator visibility, never authoritative — the snapshot file alone
// determines search results.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/texsearch/texsearch/pkg/logger"
	"github.com/texsearch/texsearch/pkg/postgres"
)

// Status is the outcome recorded for one document at one change sequence.
type Status string

const (
	StatusIndexed    Status = "indexed"
	StatusTombstoned Status = "tombstoned"
	StatusFailed     Status = "failed"
)

// DocumentOutcome is one ledger row.
type DocumentOutcome struct {
	DocID     string
	Seq       int64
	Status    Status
	AppliedAt time.Time
	Reason    string // non-empty only for StatusFailed
}

// Ledger records reconciliation outcomes to PostgreSQL. A nil *Ledger (via
// New returning one wrapping a nil db) is never constructed; callers that
// want to run without a ledger should simply not create one and skip
// Record calls, matching the teacher's own "db may be nil" idiom at the
// call site instead of inside this package.
type Ledger struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Ledger backed by db.
func New(db *postgres.Client) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.WithComponent("ledger"),
	}
}

// Record writes one outcome row. Failures to write are logged and
// swallowed — the ledger is an audit aid, not a correctness dependency, so
// a Postgres outage must never fail or stall reconciliation.
func (l *Ledger) Record(ctx context.Context, outcome DocumentOutcome) {
	if l == nil || l.db == nil {
		return
	}
	err := l.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO reconciliation_ledger (doc_id, seq, status, applied_at, reason)
			 VALUES ($1, $2, $3, $4, $5)`,
			outcome.DocID, outcome.Seq, string(outcome.Status), outcome.AppliedAt, nullableReason(outcome.Reason))
		return err
	})
	if err != nil {
		l.logger.Warn("failed to record ledger outcome",
			"doc_id", outcome.DocID,
			"seq", outcome.Seq,
			"status", outcome.Status,
			"error", err,
		)
	}
}

// RecentFailures returns the most recent failed outcomes, newest first, for
// operator diagnostics (e.g. an admin endpoint or CLI subcommand).
func (l *Ledger) RecentFailures(ctx context.Context, limit int) ([]DocumentOutcome, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT doc_id, seq, status, applied_at, COALESCE(reason, '')
		 FROM reconciliation_ledger WHERE status = $1
		 ORDER BY applied_at DESC LIMIT $2`, string(StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent failures: %w", err)
	}
	defer rows.Close()

	var out []DocumentOutcome
	for rows.Next() {
		var o DocumentOutcome
		var status string
		if err := rows.Scan(&o.DocID, &o.Seq, &status, &o.AppliedAt, &o.Reason); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullableReason(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
