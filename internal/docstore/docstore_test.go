package docstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/texsearch/texsearch/internal/forest"
)

func TestFetchChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "5" || r.URL.Query().Get("limit") != "100" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		resp := changesResponse{Rows: []ChangeRow{
			{ID: "doc1", Seq: 6, Doc: &DocPayload{DocID: "doc1", Sources: []string{"x", "y"}}},
			{ID: "doc2", Seq: 7},
		}}
		resp.Rows[1].Value.Deleted = true
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	rows, err := c.FetchChanges(t.Context(), 5, 100)
	if err != nil {
		t.Fatalf("FetchChanges: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].Seq != 6 || rows[0].Doc.DocID != "doc1" {
		t.Fatalf("rows[0] = %+v", rows[0])
	}
	if !rows[1].Value.Deleted {
		t.Fatalf("rows[1].Value.Deleted = false, want true")
	}
}

func TestFetchChangesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if _, err := c.FetchChanges(t.Context(), 0, 10); err == nil {
		t.Fatalf("FetchChanges returned nil error for 500 response")
	}
}

func TestPreprocessViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wf := WireForest{{Kind: "text", Label: "x"}}
		json.NewEncoder(w).Encode(wf)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, PreprocessorURL: srv.URL})
	wf, err := c.Preprocess(t.Context(), "x")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	in := forest.NewInterner()
	f := wf.ToForest(in)
	if forest.TopLevelLength(f) != 1 {
		t.Fatalf("TopLevelLength = %d, want 1", forest.TopLevelLength(f))
	}
}

func TestPreprocessFallsBackWhenNoURLConfigured(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"})
	wf, err := c.Preprocess(t.Context(), `\frac{a}{b} + c`)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if len(*wf) == 0 {
		t.Fatalf("local fallback returned empty forest")
	}
}

func TestLocalPreprocessorCommandWithChildren(t *testing.T) {
	wf, err := NewLocalPreprocessor().Preprocess(`\frac{a}{b}`)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	toks := *wf
	if len(toks) != 2 {
		t.Fatalf("len(tokens) = %d, want 2 (\\frac and flattened b)", len(toks))
	}
	if toks[0].Kind != "command" || toks[0].Label != "frac" {
		t.Fatalf("toks[0] = %+v", toks[0])
	}
	if len(toks[0].Children) != 1 || toks[0].Children[0].Label != "a" {
		t.Fatalf("toks[0].Children = %+v", toks[0].Children)
	}
}

func TestLocalPreprocessorPlainText(t *testing.T) {
	wf, err := NewLocalPreprocessor().Preprocess("alpha beta")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	toks := *wf
	if len(toks) != 2 || toks[0].Label != "alpha" || toks[1].Label != "beta" {
		t.Fatalf("tokens = %+v", toks)
	}
}

func TestLookupSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DocPayload{DocID: "doc1", Sources: []string{"x", "y"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	src, err := c.LookupSource(t.Context(), "doc1", FragmentIDFor("doc1", 1))
	if err != nil {
		t.Fatalf("LookupSource: %v", err)
	}
	if src != "y" {
		t.Fatalf("src = %q, want %q", src, "y")
	}
}
