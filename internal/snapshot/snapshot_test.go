package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/texsearch/texsearch/internal/forest"
	"github.com/texsearch/texsearch/internal/metrictree"
)

func frag(docID, fragmentID string, tokens ...forest.Token) forest.IndexNode {
	in := forest.NewInterner()
	f := in.Build(tokens)
	return forest.IndexNode{
		DocID:      docID,
		FragmentID: fragmentID,
		Tokens:     f,
		Suffixes:   forest.Suffixes(f),
	}
}

// Property 10: load(save(index)) = index for every reachable index state.
func TestSaveLoadRoundTrip(t *testing.T) {
	tree := metrictree.New()
	tree.Add(frag("doc1", "frag1", forest.Text("alpha"), forest.Command("dot", forest.NewInterner().Build([]forest.Token{forest.Text("V")}))))
	tree.Add(frag("doc1", "frag2", forest.Text("beta")))
	tree.Add(frag("doc2", "frag3", forest.Text("gamma"), forest.Text("delta")))
	tree.Delete("frag2")

	path := filepath.Join(t.TempDir(), "index_store")
	want := State{LastUpdateSeq: 42, Tree: tree}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LastUpdateSeq != want.LastUpdateSeq {
		t.Fatalf("LastUpdateSeq = %d, want %d", got.LastUpdateSeq, want.LastUpdateSeq)
	}
	if got.Tree.Size() != want.Tree.Size() {
		t.Fatalf("Tree.Size() = %d, want %d", got.Tree.Size(), want.Tree.Size())
	}

	gotNodes, gotRoot := got.Tree.Export()
	wantNodes, wantRoot := want.Tree.Export()
	if gotRoot != wantRoot {
		t.Fatalf("root = %d, want %d", gotRoot, wantRoot)
	}
	if len(gotNodes) != len(wantNodes) {
		t.Fatalf("len(nodes) = %d, want %d", len(gotNodes), len(wantNodes))
	}
	for i := range wantNodes {
		g, w := gotNodes[i], wantNodes[i]
		if g.Pivot.FragmentID != w.Pivot.FragmentID || g.Pivot.DocID != w.Pivot.DocID {
			t.Fatalf("node %d pivot = %+v, want %+v", i, g.Pivot, w.Pivot)
		}
		if g.Tombstoned != w.Tombstoned {
			t.Fatalf("node %d tombstoned = %v, want %v", i, g.Tombstoned, w.Tombstoned)
		}
		if !forest.Equal(g.Pivot.Tokens, w.Pivot.Tokens) {
			t.Fatalf("node %d pivot tokens not structurally equal after round-trip", i)
		}
		if len(g.Bucket) != len(w.Bucket) {
			t.Fatalf("node %d bucket len = %d, want %d", i, len(g.Bucket), len(w.Bucket))
		}
		if g.Children != w.Children {
			t.Fatalf("node %d children = %v, want %v", i, g.Children, w.Children)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatalf("Load of missing file returned nil error")
	}
}

func TestLoadRejectsCorruptBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_store")
	tree := metrictree.New()
	tree.Add(frag("doc1", "frag1", forest.Text("alpha")))
	if err := Save(path, State{LastUpdateSeq: 1, Tree: tree}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	// Flip a byte in the body to break the checksum.
	raw[HeaderSize] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing corrupted snapshot: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("Load of corrupted snapshot returned nil error, want checksum failure")
	}
}
