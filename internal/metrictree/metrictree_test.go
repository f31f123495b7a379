package metrictree

import (
	"fmt"
	"testing"

	"github.com/texsearch/texsearch/internal/forest"
)

func fragNode(docID, fragmentID string, tokens ...forest.Token) forest.IndexNode {
	in := forest.NewInterner()
	f := in.Build(tokens)
	return forest.IndexNode{
		DocID:      docID,
		FragmentID: fragmentID,
		Tokens:     f,
		Suffixes:   forest.Suffixes(f),
	}
}

// Scenario S1: empty index + query returns no results, search still
// terminates.
func TestEmptyTreeSearch(t *testing.T) {
	tree := New()
	query := fragNode("q", "q", forest.Text("x"))
	s := NewSearch(tree, query)
	results, done := s.Next(10)
	if len(results) != 0 {
		t.Fatalf("results = %v, want empty", results)
	}
	if !done {
		t.Fatalf("done = false, want true for exhausted empty tree")
	}
}

// Scenario S2: exact single-token match is returned at distance 0.
func TestExactMatchFound(t *testing.T) {
	tree := New()
	tree.Add(fragNode("doc1", "frag1", forest.Text("x")))

	query := fragNode("q", "q", forest.Text("x"))
	s := NewSearch(tree, query)
	results, _ := s.Next(10)
	if len(results) != 1 {
		t.Fatalf("results = %v, want 1 match", results)
	}
	if results[0].Distance != 0 || results[0].FragmentID != "frag1" {
		t.Fatalf("results[0] = %+v, want distance 0 for frag1", results[0])
	}
}

// Scenario S4: deleting (tombstoning) a fragment removes it from results
// but the search still terminates.
func TestDeletedFragmentExcluded(t *testing.T) {
	tree := New()
	for i := 0; i < 50; i++ {
		tree.Add(fragNode("doc", fmt.Sprintf("frag%d", i), forest.Text(fmt.Sprintf("t%d", i))))
	}
	tree.Add(fragNode("doc", "target", forest.Text("needle")))
	tree.Delete("target")

	query := fragNode("q", "q", forest.Text("needle"))
	s := NewSearch(tree, query)
	results, done := s.Next(1000)
	if !done {
		t.Fatalf("search did not terminate")
	}
	for _, r := range results {
		if r.FragmentID == "target" {
			t.Fatalf("tombstoned fragment appeared in results: %+v", r)
		}
	}
}

// Property 6: every node in child band [lo, hi) has pivot-distance in that
// band, including tombstoned nodes.
func TestBandInvariantAfterManyInserts(t *testing.T) {
	tree := New()
	for i := 0; i < 200; i++ {
		tree.Add(fragNode("doc", fmt.Sprintf("frag%d", i), forest.Text(fmt.Sprintf("token%d", i)), forest.Text(fmt.Sprintf("extra%d", i%7))))
	}
	tree.Delete("frag5")

	checkBandInvariant(t, tree, tree.root)
}

// inBand reports whether d falls in band i's span: [i*BucketSize,
// (i+1)*BucketSize) for i < BranchSize, or [BranchSize*BucketSize, inf)
// for the overflow band i == BranchSize.
func inBand(d, i int) bool {
	lo := i * BucketSize
	if i == BranchSize {
		return d >= lo
	}
	return d >= lo && d < lo+BucketSize
}

func checkBandInvariant(t *testing.T, tree *Tree, idx int) {
	if idx == noChild {
		return
	}
	n := &tree.arena[idx]
	for band, child := range n.children {
		if child == noChild {
			continue
		}
		verifySubtreeBand(t, tree, child, n.pivot, band)
		checkBandInvariant(t, tree, child)
	}
}

func verifySubtreeBand(t *testing.T, tree *Tree, idx int, pivot forest.IndexNode, band int) {
	n := &tree.arena[idx]
	d := dist(n.pivot, pivot)
	if !inBand(d, band) {
		t.Errorf("pivot at distance %d from parent pivot falls outside band %d", d, band)
	}
	for _, b := range n.bucket {
		bd := dist(b, pivot)
		if !inBand(bd, band) {
			t.Errorf("bucket entry at distance %d from parent pivot falls outside band %d", bd, band)
		}
	}
	for _, c := range n.children {
		if c != noChild {
			verifySubtreeBand(t, tree, c, pivot, band)
		}
	}
}

// Property 11 (reconciler-adjacent) sanity: deleting a fragment that was
// never inserted is a no-op and does not panic.
func TestDeleteUnknownFragmentIsNoop(t *testing.T) {
	tree := New()
	tree.Add(fragNode("doc", "frag1", forest.Text("a")))
	tree.Delete("does-not-exist")
	if tree.Size() != 1 {
		t.Fatalf("Size = %d, want 1 (tombstones don't shrink the tree)", tree.Size())
	}
}

// Monotone yield (property 8): distances produced by successive pages are
// non-decreasing.
func TestMonotoneYieldAcrossPages(t *testing.T) {
	tree := New()
	for i := 0; i < 30; i++ {
		tree.Add(fragNode("doc", fmt.Sprintf("f%d", i), forest.Text(fmt.Sprintf("w%d", i))))
	}
	query := fragNode("q", "q", forest.Text("w0"))
	s := NewSearch(tree, query)

	var allDistances []int
	for {
		page, done := s.Next(3)
		for _, m := range page {
			allDistances = append(allDistances, m.Distance)
		}
		if done {
			break
		}
	}
	for i := 1; i < len(allDistances); i++ {
		if allDistances[i] < allDistances[i-1] {
			t.Fatalf("distances not monotone: %v", allDistances)
		}
	}
}
