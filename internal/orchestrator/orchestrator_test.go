package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/texsearch/texsearch/internal/docstore"
	"github.com/texsearch/texsearch/internal/forest"
	"github.com/texsearch/texsearch/internal/metrictree"
)

// fakeDocStoreServer serves /preprocess (echoing one Text token per
// whitespace-delimited word) and /documents/{docID} (a fixed single-source
// document), enough to drive a full orchestrator.Handle round trip without
// a real document store.
func fakeDocStoreServer(t *testing.T, docID, source string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/preprocess", func(w http.ResponseWriter, r *http.Request) {
		latex := r.URL.Query().Get("latex")
		var wf docstore.WireForest
		for _, word := range strings.Fields(latex) {
			wf = append(wf, docstore.WireToken{Kind: "text", Label: word})
		}
		json.NewEncoder(w).Encode(wf)
	})
	mux.HandleFunc("/documents/"+docID, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(docstore.DocPayload{DocID: docID, Sources: []string{source}})
	})
	return httptest.NewServer(mux)
}

func buildTree(t *testing.T, docID, source string) *metrictree.Tree {
	t.Helper()
	in := forest.NewInterner()
	tokens := make([]forest.Token, 0)
	for _, word := range strings.Fields(source) {
		tokens = append(tokens, forest.Text(word))
	}
	f := in.Build(tokens)
	frag := forest.Fragment{FragmentID: docstore.FragmentIDFor(docID, 0), Source: source, Tokens: f}
	tree := metrictree.New()
	for _, node := range forest.SuffixNodes(docID, frag) {
		tree.Add(node)
	}
	return tree
}

func TestHandleJSONSingleDocument(t *testing.T) {
	const docID, source = "doc-1", "a b c"
	srv := fakeDocStoreServer(t, docID, source)
	defer srv.Close()

	tree := buildTree(t, docID, source)
	docs := docstore.New(docstore.Config{BaseURL: srv.URL, PreprocessorURL: srv.URL})
	orch := New(tree, docs, nil, nil)

	req, err := ParseRequest([]byte(`{"query":{"searchTerm":"a b c","format":"json"}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	resp := orch.Handle(t.Context(), req, "req-1")
	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}
	if resp.JSON == nil || len(resp.JSON.Results) == 0 {
		t.Fatalf("expected at least one result, got %+v", resp)
	}
	if resp.JSON.Results[0].Source != source {
		t.Fatalf("Source = %q, want %q", resp.JSON.Results[0].Source, source)
	}
}

func TestHandleXMLVerbatimSource(t *testing.T) {
	const docID, source = "doc-1", "hello world"
	srv := fakeDocStoreServer(t, docID, source)
	defer srv.Close()

	tree := buildTree(t, docID, source)
	docs := docstore.New(docstore.Config{BaseURL: srv.URL, PreprocessorURL: srv.URL})
	orch := New(tree, docs, nil, nil)

	req, err := ParseRequest([]byte(`{"query":{"searchTerm":"hello world","format":"xml"}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	resp := orch.Handle(t.Context(), req, "req-1")
	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}
	if !strings.Contains(resp.Body, source) {
		t.Fatalf("expected XML body to contain verbatim source %q, got %q", source, resp.Body)
	}
	if !strings.Contains(resp.Body, `doi="doc-1"`) {
		t.Fatalf("expected doi attribute in body, got %q", resp.Body)
	}
}

func TestHandleBadRequestNeverReachesCompute(t *testing.T) {
	tree := metrictree.New()
	_ = New(tree, docstore.New(docstore.Config{BaseURL: "http://unused.invalid"}), nil, nil)

	req, err := ParseRequest([]byte(`{"query":{"searchTerm":"x","format":"bogus"}}`))
	if err == nil {
		t.Fatalf("expected ParseRequest to reject bogus format, got req=%+v", req)
	}
}

func TestHandlePaginationWindow(t *testing.T) {
	const docID, source = "doc-1", "a b c d e f"
	srv := fakeDocStoreServer(t, docID, source)
	defer srv.Close()

	tree := buildTree(t, docID, source)
	docs := docstore.New(docstore.Config{BaseURL: srv.URL, PreprocessorURL: srv.URL})
	orch := New(tree, docs, nil, nil)

	full, err := ParseRequest([]byte(`{"query":{"searchTerm":"a b c d e f","format":"json"}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	fullResp := orch.Handle(t.Context(), full, "req-1")
	if fullResp.JSON == nil || len(fullResp.JSON.Results) == 0 {
		t.Fatalf("expected non-empty baseline result set")
	}
	total := len(fullResp.JSON.Results)
	if total < 2 {
		t.Skip("not enough matches to exercise pagination")
	}

	windowed, err := ParseRequest([]byte(`{"query":{"searchTerm":"a b c d e f","startAt":"2","endAt":"2","format":"json"}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	windowedResp := orch.Handle(t.Context(), windowed, "req-2")
	if len(windowedResp.JSON.Results) != 1 {
		t.Fatalf("expected exactly 1 result for startAt=endAt=2, got %d", len(windowedResp.JSON.Results))
	}
	if windowedResp.JSON.Results[0] != fullResp.JSON.Results[1] {
		t.Fatalf("windowed result %+v != full[1] %+v", windowedResp.JSON.Results[0], fullResp.JSON.Results[1])
	}
}
