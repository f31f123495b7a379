// Package editdist implements the memoized tree edit-distance kernel: the
// full (symmetric) distance used by properties 1-3, and the left-anchored
// variant used operationally by the metric-tree index to let a query match
// as a prefix anywhere within a larger fragment.
package editdist

import "github.com/texsearch/texsearch/internal/forest"

// Stats reports memo-table effectiveness for one top-level Distance or
// LeftDistance call, useful for tracing slow queries.
type Stats struct {
	MemoHits   int
	MemoMisses int
}

type memoKey struct {
	l, r *forest.Forest
}

// Distance computes the full (symmetric) tree edit distance between fL and
// fR: d(f, f) = 0, d(f, g) = d(g, f), and d(f, g) <= cost(f) + cost(g).
func Distance(fL, fR *forest.Forest) int {
	d, _ := DistanceStats(fL, fR)
	return d
}

// DistanceStats is Distance plus memo-table hit/miss counters.
func DistanceStats(fL, fR *forest.Forest) (int, Stats) {
	c := newCalc()
	d := c.run(fL, fR, false)
	return d, c.stats
}

// LeftDistance computes the left-anchored distance: fL is allowed to be
// fully matched against a mere prefix of fR (the remainder of fR is free),
// but all of fL must be accounted for if fR runs out first. It is not
// symmetric and is always called with the query forest as fL.
func LeftDistance(fL, fR *forest.Forest) int {
	d, _ := LeftDistanceStats(fL, fR)
	return d
}

// LeftDistanceStats is LeftDistance plus memo-table hit/miss counters.
func LeftDistanceStats(fL, fR *forest.Forest) (int, Stats) {
	c := newCalc()
	d := c.run(fL, fR, true)
	return d, c.stats
}

// IndexDistance is the distance internal/metrictree uses between two index
// nodes: the left-anchored distance between their token forests, with a as
// the query side. Both a and b are expected to already be one of a
// fragment's precomputed suffix forests (see forest.SuffixNodes) so that
// left-anchoring at a.Tokens's own start still captures "query occurs
// anywhere in the original fragment" once every suffix is indexed.
func IndexDistance(a, b *forest.Forest) int {
	return LeftDistance(a, b)
}

type calc struct {
	interner *forest.Interner
	memo     map[memoKey]int
	stats    Stats
}

func newCalc() *calc {
	return &calc{
		interner: forest.NewInterner(),
		memo:     make(map[memoKey]int),
	}
}

func (c *calc) run(fL, fR *forest.Forest, leftAnchored bool) int {
	key := memoKey{l: fL, r: fR}
	if v, ok := c.memo[key]; ok {
		c.stats.MemoHits++
		return v
	}
	c.stats.MemoMisses++

	var result int
	switch {
	case fL == nil && fR == nil:
		result = 0
	case fL == nil:
		if leftAnchored {
			result = 0
		} else {
			result = forest.Cost(fR)
		}
	case fR == nil:
		result = forest.Cost(fL)
	default:
		result = c.recurse(fL, fR, leftAnchored)
	}

	c.memo[key] = result
	return result
}

func (c *calc) recurse(fL, fR *forest.Forest, leftAnchored bool) int {
	cL, csL := fL.Head, fL.Tail
	cR, csR := fR.Head, fR.Tail

	// Option 1: delete cR. Its children become siblings at the same level.
	fR1 := c.interner.Concat(cR.Children, csR)
	opt1 := deleteCost(cR) + c.run(fL, fR1, leftAnchored)

	// Option 2: delete cL.
	fL2 := c.interner.Concat(cL.Children, csL)
	opt2 := deleteCost(cL) + c.run(fL2, fR, leftAnchored)

	// Option 3: match roots, then recurse on combined children + tails.
	fL3 := c.interner.Concat(cL.Children, csL)
	fR3 := c.interner.Concat(cR.Children, csR)
	opt3 := renameCost(cL, cR) + c.run(fL3, fR3, leftAnchored)

	return min3(opt1, opt2, opt3)
}

// deleteCost is metric(None, Some(label)) or metric(Some(label), None):
// always 1, since one side is absent.
func deleteCost(forest.Token) int { return 1 }

// renameCost is metric(Some(labL), Some(labR)): 0 when both kind and label
// match, 1 otherwise.
func renameCost(l, r forest.Token) int {
	if l.Kind == r.Kind && l.Label == r.Label {
		return 0
	}
	return 1
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
