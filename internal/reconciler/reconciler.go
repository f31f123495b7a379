// Package reconciler implements the update reconciler (C5): it pulls
// sequential batches of document changes from the external document store,
// applies them to an in-memory metric tree, and persists the result to an
// atomic snapshot on disk. It is the sole writer of index state; the query
// path never mutates a tree.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/texsearch/texsearch/internal/analytics"
	"github.com/texsearch/texsearch/internal/docstore"
	"github.com/texsearch/texsearch/internal/forest"
	"github.com/texsearch/texsearch/internal/ledger"
	"github.com/texsearch/texsearch/internal/metrictree"
	"github.com/texsearch/texsearch/internal/snapshot"
	apperrors "github.com/texsearch/texsearch/pkg/errors"
	"github.com/texsearch/texsearch/pkg/logger"
)

// BatchSize is the maximum number of documents fetched from the document
// store per RunBatch call.
const BatchSize = 100

// Reconciler owns the authoritative in-memory tree and its on-disk
// snapshot, and drives one or more RunBatch calls to a fixed point.
type Reconciler struct {
	docs     *docstore.Client
	snapPath string
	ledger   *ledger.Ledger
	events   *analytics.Collector
	logger   *slog.Logger

	tree          *metrictree.Tree
	lastUpdateSeq int64
	interner      *forest.Interner
}

// New builds a Reconciler over the snapshot at snapPath. If no snapshot
// exists yet, it starts from an empty tree at sequence 0 — callers that
// require -init semantics should check snapshot.Exists themselves before
// the first run.
func New(docs *docstore.Client, snapPath string, led *ledger.Ledger, events *analytics.Collector) (*Reconciler, error) {
	r := &Reconciler{
		docs:     docs,
		snapPath: snapPath,
		ledger:   led,
		events:   events,
		logger:   logger.WithComponent("reconciler"),
		interner: forest.NewInterner(),
	}
	if snapshot.Exists(snapPath) {
		st, err := snapshot.Load(snapPath)
		if err != nil {
			return nil, fmt.Errorf("loading existing snapshot: %w", err)
		}
		r.tree = st.Tree
		r.lastUpdateSeq = st.LastUpdateSeq
	} else {
		r.tree = metrictree.New()
		r.lastUpdateSeq = 0
	}
	return r, nil
}

// LastUpdateSeq returns the sequence the in-memory tree has been
// reconciled through.
func (r *Reconciler) LastUpdateSeq() int64 { return r.lastUpdateSeq }

// Tree returns the reconciler's current in-memory tree, for read-only
// inspection (e.g. by tests checking what a batch left in the tree).
func (r *Reconciler) Tree() *metrictree.Tree { return r.tree }

// RunToFixedPoint calls RunBatch repeatedly until a batch advances
// last_update by zero documents, tolerating an unbounded backlog with
// bounded per-batch memory.
func (r *Reconciler) RunToFixedPoint(ctx context.Context) error {
	for {
		applied, err := r.RunBatch(ctx)
		if err != nil {
			return err
		}
		if applied == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return apperrors.Timeout("reconciliation interrupted: %v", ctx.Err())
		}
	}
}

// RunBatch fetches up to BatchSize changes past r.lastUpdateSeq, applies
// each (tombstone then, for non-deletions, re-add every suffix node), and
// advances r.lastUpdateSeq only for updates that succeed. A per-document
// failure is logged and skipped; it never blocks later documents in the
// same batch or stalls the sequence past the last success. It returns the
// number of documents successfully applied.
func (r *Reconciler) RunBatch(ctx context.Context) (applied int, err error) {
	start := time.Now()
	rows, err := r.docs.FetchChanges(ctx, r.lastUpdateSeq, BatchSize)
	if err != nil {
		r.publishBatchEvent(0, 0, 0, start)
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	failed := 0
	for _, row := range rows {
		outcome := ledger.DocumentOutcome{DocID: row.ID, Seq: row.Seq, AppliedAt: time.Now()}
		if err := r.applyChange(ctx, row); err != nil {
			r.logger.Warn("skipping failed update", "doc_id", row.ID, "seq", row.Seq, "error", err)
			outcome.Status = ledger.StatusFailed
			outcome.Reason = err.Error()
			r.ledger.Record(ctx, outcome)
			failed++
			continue
		}
		if row.Value.Deleted {
			outcome.Status = ledger.StatusTombstoned
		} else {
			outcome.Status = ledger.StatusIndexed
		}
		r.ledger.Record(ctx, outcome)
		r.lastUpdateSeq = row.Seq
		applied++
	}

	if applied > 0 {
		if err := snapshot.Save(r.snapPath, snapshot.State{LastUpdateSeq: r.lastUpdateSeq, Tree: r.tree}); err != nil {
			r.publishBatchEvent(applied, failed, 0, start)
			return applied, err
		}
		reloaded, err := snapshot.Load(r.snapPath)
		if err != nil {
			r.publishBatchEvent(applied, failed, 0, start)
			return applied, fmt.Errorf("reloading snapshot after save: %w", err)
		}
		r.tree = reloaded.Tree
		r.lastUpdateSeq = reloaded.LastUpdateSeq
	}

	r.publishBatchEvent(applied, failed, r.lastUpdateSeq, start)
	return applied, nil
}

// applyChange unconditionally tombstones every existing entry for
// row.ID, then, if the change is not a deletion, rebuilds its fragments
// from the document store's current sources and re-adds every suffix node.
func (r *Reconciler) applyChange(ctx context.Context, row docstore.ChangeRow) error {
	if row.Doc == nil && !row.Value.Deleted {
		return apperrors.Upstream("change row for %s has neither a document body nor a delete marker", row.ID)
	}

	r.tree.DeleteDoc(row.ID)

	if row.Value.Deleted || row.Doc == nil {
		return nil
	}

	for i, source := range row.Doc.Sources {
		wf, err := r.docs.Preprocess(ctx, source)
		if err != nil {
			return fmt.Errorf("preprocessing fragment %d of %s: %w", i, row.ID, err)
		}
		tokens := wf.ToForest(r.interner)
		frag := forest.Fragment{
			FragmentID: docstore.FragmentIDFor(row.Doc.DocID, i),
			Source:     source,
			Tokens:     tokens,
		}
		for _, node := range forest.SuffixNodes(row.Doc.DocID, frag) {
			r.tree.Add(node)
		}
	}
	return nil
}

func (r *Reconciler) publishBatchEvent(applied, failed int, lastSeq int64, start time.Time) {
	if r.events == nil {
		return
	}
	r.events.Track(analytics.ReconcileEvent{
		Type:          analytics.EventReconcile,
		BatchSize:     BatchSize,
		Applied:       applied,
		Failed:        failed,
		LastUpdateSeq: lastSeq,
		LatencyMs:     time.Since(start).Milliseconds(),
		Timestamp:     time.Now(),
	})
}
