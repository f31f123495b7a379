package metrictree

import (
	"github.com/texsearch/texsearch/internal/forest"
	"github.com/texsearch/texsearch/internal/pqueue"
)

// Match is one ranked search result: the document and fragment a pivot or
// bucket entry belongs to, and its distance from the query.
type Match struct {
	DocID      string
	FragmentID string
	Distance   int
}

// Search is ephemeral, resumable k-NN search state over a Tree, built once
// per query and paginated via repeated Next calls.
type Search struct {
	tree   *Tree
	target forest.IndexNode

	unsearched *pqueue.Queue[int] // payload: arena index; priority: lower-bound distance
	sorting    *pqueue.Queue[Match]
	sorted     *pqueue.Queue[Match]

	minDist int
	cutoff  int
}

// NewSearch builds a Search over tree for the given query index node. The
// cutoff is fixed at creation: floor(len(target.Suffixes)/3) + 1.
func NewSearch(tree *Tree, target forest.IndexNode) *Search {
	s := &Search{
		tree:       tree,
		target:     target,
		unsearched: pqueue.New[int](),
		sorting:    pqueue.New[Match](),
		sorted:     pqueue.New[Match](),
	}
	s.cutoff = len(target.Suffixes)/3 + 1
	if tree.root != noChild {
		s.unsearched.Add(tree.root, 0)
	}
	return s
}

// Cutoff returns the search's fixed distance cutoff.
func (s *Search) Cutoff() int { return s.cutoff }

// Next requests the next page of up to k results. done is true only once
// no further subtree will be searched (the frontier is exhausted, or the
// largest lower bound popped so far exceeds the cutoff) and results is the
// final, complete page (it may be shorter than k).
func (s *Search) Next(k int) (results []Match, done bool) {
	for {
		if s.sorted.Len() >= k {
			items, _ := s.sorted.SplitAtLength(k)
			return matchesOf(items), false
		}
		idx, ok := s.nextSearchNode()
		if !ok {
			if s.sorting.Empty() {
				return matchesOf(s.sorted.ToList()), true
			}
			s.sorted.Append(s.sorting)
			continue
		}
		s.expand(idx)
	}
}

func (s *Search) nextSearchNode() (int, bool) {
	if s.minDist > s.cutoff {
		return 0, false
	}
	item, ok := s.unsearched.Pop()
	if !ok {
		return 0, false
	}
	if item.Priority > s.minDist {
		s.minDist = item.Priority
	}
	promoted := s.sorting.SplitAtPriority(s.minDist)
	for _, m := range promoted {
		s.sorted.Add(m.Value, m.Priority)
	}
	return item.Value, true
}

func (s *Search) expand(idx int) {
	branch := &s.tree.arena[idx]
	dp := dist(s.target, branch.pivot)

	for i := 0; i < BranchSize; i++ {
		child := branch.children[i]
		if child == noChild {
			continue
		}
		lb := dp - i*BucketSize
		if lb < 0 {
			lb = 0
		}
		s.unsearched.Add(child, lb)
	}
	if overflow := branch.children[BranchSize]; overflow != noChild {
		s.unsearched.Add(overflow, 0)
	}

	if !branch.tombstoned {
		s.insertResult(branch.pivot.FragmentID, branch.pivot.DocID, dp)
	}
	for _, b := range branch.bucket {
		s.insertResult(b.FragmentID, b.DocID, dist(s.target, b))
	}
}

func (s *Search) insertResult(fragmentID, docID string, d int) {
	if d >= s.cutoff {
		return
	}
	match := Match{DocID: docID, FragmentID: fragmentID, Distance: d}
	if d < s.minDist {
		s.sorted.Add(match, d)
	} else {
		s.sorting.Add(match, d)
	}
}

func matchesOf(items []pqueue.Item[Match]) []Match {
	out := make([]Match, len(items))
	for i, item := range items {
		out[i] = item.Value
	}
	return out
}
