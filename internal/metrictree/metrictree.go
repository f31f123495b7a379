// Package metrictree implements the BK-tree metric index over
// internal/editdist's left-anchored distance: incremental insert, logical
// (tombstone) delete, and a resumable, paginated k-nearest search.
//
// The left-anchored distance is not a strict metric (it is asymmetric and
// the triangle inequality is not proven for it), but the tree is built and
// searched as though it were — a documented design compromise inherited
// from the system this index is modeled on. Search completeness (every
// node closer than the cutoff appears in the output) is therefore only
// empirically, not provably, valid.
package metrictree

import (
	"github.com/texsearch/texsearch/internal/editdist"
	"github.com/texsearch/texsearch/internal/forest"
)

// BucketSize is the distance span covered by a node's in-place bucket and
// by each of its banded children.
const BucketSize = 5

// BranchSize is the number of banded children per branch; band i covers
// [i*BucketSize, (i+1)*BucketSize). Child BranchSize is the overflow band
// [BranchSize*BucketSize, inf).
const BranchSize = 20

// node is one branch of the tree, stored in Tree's arena and referenced by
// integer handle so the hot search loop never chases bare pointers.
type node struct {
	pivot      forest.IndexNode
	tombstoned bool
	bucket     []forest.IndexNode
	// children[i] for i in [0, BranchSize) covers distance band
	// [i*BucketSize, (i+1)*BucketSize); children[BranchSize] is overflow.
	children [BranchSize + 1]int
}

const noChild = -1

func newNode(pivot forest.IndexNode) node {
	n := node{pivot: pivot}
	for i := range n.children {
		n.children[i] = noChild
	}
	return n
}

// Tree is an arena-backed BK-tree. The zero value is an empty tree ready
// to use.
type Tree struct {
	arena []node
	root  int // noChild when empty
}

// New creates an empty Tree.
func New() *Tree {
	return &Tree{root: noChild}
}

// Size returns the number of pivot+bucket entries stored, including
// tombstoned ones.
func (t *Tree) Size() int {
	return t.sizeOf(t.root)
}

func (t *Tree) sizeOf(idx int) int {
	if idx == noChild {
		return 0
	}
	n := &t.arena[idx]
	total := 1 + len(n.bucket)
	for _, c := range n.children {
		total += t.sizeOf(c)
	}
	return total
}

// dist is the index distance used throughout the tree: the left-anchored
// edit distance with a as the query/left side.
func dist(a, b forest.IndexNode) int {
	return editdist.IndexDistance(a.Tokens, b.Tokens)
}

// Add inserts node into the tree.
func (t *Tree) Add(n forest.IndexNode) {
	if t.root == noChild {
		t.root = t.alloc(newNode(n))
		return
	}
	t.addAt(t.root, n)
}

func (t *Tree) alloc(n node) int {
	t.arena = append(t.arena, n)
	return len(t.arena) - 1
}

func (t *Tree) addAt(idx int, n forest.IndexNode) {
	branch := &t.arena[idx]
	d := dist(n, branch.pivot)
	if d < BucketSize {
		branch.bucket = append([]forest.IndexNode{n}, branch.bucket...)
		return
	}
	band := d / BucketSize
	if band > BranchSize {
		band = BranchSize
	}
	child := branch.children[band]
	if child == noChild {
		newIdx := t.alloc(newNode(n))
		// t.alloc may have reallocated the arena slice; re-fetch branch.
		t.arena[idx].children[band] = newIdx
		return
	}
	t.addAt(child, n)
}

// NodeState is the persistable form of one arena slot, used by
// internal/snapshot to serialize and restore a Tree without reaching into
// its unexported fields.
type NodeState struct {
	Pivot      forest.IndexNode
	Tombstoned bool
	Bucket     []forest.IndexNode
	Children   [BranchSize + 1]int
}

// Export returns the Tree's arena and root as NodeState, for serialization.
func (t *Tree) Export() (nodes []NodeState, root int) {
	nodes = make([]NodeState, len(t.arena))
	for i, n := range t.arena {
		nodes[i] = NodeState{
			Pivot:      n.pivot,
			Tombstoned: n.tombstoned,
			Bucket:     n.bucket,
			Children:   n.children,
		}
	}
	return nodes, t.root
}

// Import rebuilds a Tree from previously Exported state.
func Import(nodes []NodeState, root int) *Tree {
	arena := make([]node, len(nodes))
	for i, ns := range nodes {
		arena[i] = node{
			pivot:      ns.Pivot,
			tombstoned: ns.Tombstoned,
			bucket:     ns.Bucket,
			children:   ns.Children,
		}
	}
	return &Tree{arena: arena, root: root}
}

// Delete tombstones every pivot whose FragmentID matches fragmentID and
// removes matching entries from every bucket. Tombstoning a pivot is
// logical: its subtrees remain reachable so the tree's shape (and every
// descendant's distance-band invariant) is preserved.
func (t *Tree) Delete(fragmentID string) {
	t.deleteAt(t.root, fragmentID)
}

func (t *Tree) deleteAt(idx int, fragmentID string) {
	if idx == noChild {
		return
	}
	branch := &t.arena[idx]
	if branch.pivot.FragmentID == fragmentID {
		branch.tombstoned = true
	}
	filtered := branch.bucket[:0:0]
	for _, b := range branch.bucket {
		if b.FragmentID != fragmentID {
			filtered = append(filtered, b)
		}
	}
	branch.bucket = filtered
	for _, c := range branch.children {
		t.deleteAt(c, fragmentID)
	}
}

// DeleteDoc tombstones every pivot belonging to docID and removes that
// document's entries from every bucket, regardless of fragment, matching the update reconciler's
// "unconditionally tombstone any existing entry for u.doc_id" step — a
// document's previous fragment count is not known in advance, so deletion
// is keyed on the document as a whole rather than replayed per fragment
// index.
func (t *Tree) DeleteDoc(docID string) {
	t.deleteDocAt(t.root, docID)
}

func (t *Tree) deleteDocAt(idx int, docID string) {
	if idx == noChild {
		return
	}
	branch := &t.arena[idx]
	if branch.pivot.DocID == docID {
		branch.tombstoned = true
	}
	filtered := branch.bucket[:0:0]
	for _, b := range branch.bucket {
		if b.DocID != docID {
			filtered = append(filtered, b)
		}
	}
	branch.bucket = filtered
	for _, c := range branch.children {
		t.deleteDocAt(c, docID)
	}
}
