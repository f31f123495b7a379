package reconciler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/texsearch/texsearch/internal/docstore"
	"github.com/texsearch/texsearch/internal/ledger"
)

// fakeDocStore serves rows as a change feed: every row whose Seq is past
// the request's since parameter, in the given order (limit is ignored).
func fakeDocStore(t *testing.T, rows []docstore.ChangeRow) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since := parseIntOrZero(r.URL.Query().Get("since"))
		w.Header().Set("Content-Type", "application/json")
		var page []docstore.ChangeRow
		for _, row := range rows {
			if row.Seq > since {
				page = append(page, row)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"rows": page})
	}))
}

func parseIntOrZero(s string) int64 {
	n, err := docstore.ParseSeq(s)
	if err != nil {
		return 0
	}
	return n
}

func newTestReconciler(t *testing.T, srv *httptest.Server) (*Reconciler, string) {
	t.Helper()
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "index_store")
	client := docstore.New(docstore.Config{BaseURL: srv.URL})
	r, err := New(client, snapPath, ledger.New(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, snapPath
}

func TestRunBatchIndexesThenReconciles(t *testing.T) {
	rows := []docstore.ChangeRow{
		{
			ID:  "doc-1",
			Seq: 1,
			Doc: &docstore.DocPayload{DocID: "doc-1", Sources: []string{"a b c", "x y"}},
		},
	}
	srv := fakeDocStore(t, rows)
	defer srv.Close()

	r, snapPath := newTestReconciler(t, srv)
	applied, err := r.RunBatch(t.Context())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if r.LastUpdateSeq() != 1 {
		t.Fatalf("LastUpdateSeq = %d, want 1", r.LastUpdateSeq())
	}
	if r.Tree().Size() == 0 {
		t.Fatalf("expected a non-empty tree after indexing")
	}
	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}

	// A second RunBatch with no new rows is a no-op fixed point.
	applied2, err := r.RunBatch(t.Context())
	if err != nil {
		t.Fatalf("second RunBatch: %v", err)
	}
	if applied2 != 0 {
		t.Fatalf("second applied = %d, want 0", applied2)
	}
}

func TestRunBatchTombstonesOnDelete(t *testing.T) {
	rows := []docstore.ChangeRow{
		{
			ID:  "doc-1",
			Seq: 1,
			Doc: &docstore.DocPayload{DocID: "doc-1", Sources: []string{"a b"}},
		},
		{
			ID:  "doc-1",
			Seq: 2,
			Value: struct {
				Deleted bool `json:"deleted"`
			}{Deleted: true},
		},
	}
	srv := fakeDocStore(t, rows)
	defer srv.Close()

	r, _ := newTestReconciler(t, srv)
	if err := r.RunToFixedPoint(t.Context()); err != nil {
		t.Fatalf("RunToFixedPoint: %v", err)
	}
	if r.LastUpdateSeq() != 2 {
		t.Fatalf("LastUpdateSeq = %d, want 2", r.LastUpdateSeq())
	}
	nodes, _ := r.Tree().Export()
	for i, n := range nodes {
		if n.Pivot.DocID == "doc-1" && !n.Tombstoned {
			t.Fatalf("node %d pivot for deleted doc-1 is not tombstoned", i)
		}
		for _, b := range n.Bucket {
			if b.DocID == "doc-1" {
				t.Fatalf("node %d bucket still holds an entry for deleted doc-1", i)
			}
		}
	}
}

func TestNewLoadsExistingSnapshot(t *testing.T) {
	rows := []docstore.ChangeRow{
		{ID: "doc-1", Seq: 1, Doc: &docstore.DocPayload{DocID: "doc-1", Sources: []string{"hello"}}},
	}
	srv := fakeDocStore(t, rows)
	defer srv.Close()

	r1, snapPath := newTestReconciler(t, srv)
	if _, err := r1.RunBatch(t.Context()); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	client := docstore.New(docstore.Config{BaseURL: srv.URL})
	r2, err := New(client, snapPath, ledger.New(nil), nil)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if r2.LastUpdateSeq() != 1 {
		t.Fatalf("reloaded LastUpdateSeq = %d, want 1", r2.LastUpdateSeq())
	}
	if r2.Tree().Size() != r1.Tree().Size() {
		t.Fatalf("reloaded tree size %d != original %d", r2.Tree().Size(), r1.Tree().Size())
	}
}
