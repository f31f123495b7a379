package editdist

import (
	"testing"

	"github.com/texsearch/texsearch/internal/forest"
)

func build(tokens ...forest.Token) *forest.Forest {
	return forest.NewInterner().Build(tokens)
}

// Property 1: d(f, f) = 0 and d(f, g) >= 0.
func TestDistanceIdentityAndNonNegative(t *testing.T) {
	f := build(forest.Text("a"), forest.Text("b"))
	if d := Distance(f, f); d != 0 {
		t.Fatalf("Distance(f, f) = %d, want 0", d)
	}
	g := build(forest.Text("c"), forest.Text("d"), forest.Text("e"))
	if d := Distance(f, g); d < 0 {
		t.Fatalf("Distance(f, g) = %d, want >= 0", d)
	}
}

// Property 2: d(f, g) = d(g, f) for the full variant.
func TestDistanceSymmetric(t *testing.T) {
	f := build(forest.Text("x"), forest.Text("y"))
	g := build(forest.Text("y"), forest.Text("z"), forest.Text("w"))
	if Distance(f, g) != Distance(g, f) {
		t.Fatalf("Distance not symmetric: %d vs %d", Distance(f, g), Distance(g, f))
	}
}

// Property 3: d(f, g) <= cost(f) + cost(g).
func TestDistanceUpperBound(t *testing.T) {
	f := build(forest.Text("x"), forest.Command("dot", build(forest.Text("y"))))
	g := build(forest.Text("z"))
	d := Distance(f, g)
	bound := forest.Cost(f) + forest.Cost(g)
	if d > bound {
		t.Fatalf("Distance = %d, exceeds bound %d", d, bound)
	}
}

// Property 4: ld(f, g) <= cost(f) always.
func TestLeftDistanceUpperBound(t *testing.T) {
	f := build(forest.Text("a"), forest.Text("b"), forest.Text("c"))
	g := build(forest.Text("z"))
	ld := LeftDistance(f, g)
	if ld > forest.Cost(f) {
		t.Fatalf("LeftDistance = %d, exceeds cost(f) = %d", ld, forest.Cost(f))
	}
}

func TestLeftDistancePrefixIsFree(t *testing.T) {
	// f occurs verbatim as a prefix of g; the remainder of g must be free.
	f := build(forest.Text("a"), forest.Text("b"))
	g := build(forest.Text("a"), forest.Text("b"), forest.Text("c"), forest.Text("d"))
	if ld := LeftDistance(f, g); ld != 0 {
		t.Fatalf("LeftDistance(prefix, superset) = %d, want 0", ld)
	}
}

func TestLeftDistanceAgainstEmptyTarget(t *testing.T) {
	f := build(forest.Text("a"), forest.Text("b"))
	if ld := LeftDistance(f, nil); ld != forest.Cost(f) {
		t.Fatalf("LeftDistance(f, empty) = %d, want cost(f) = %d", ld, forest.Cost(f))
	}
}

func TestLeftDistanceEmptyQuery(t *testing.T) {
	g := build(forest.Text("a"), forest.Text("b"))
	if ld := LeftDistance(nil, g); ld != 0 {
		t.Fatalf("LeftDistance(empty, g) = %d, want 0", ld)
	}
}

// Scenario S2: exact single-token match has distance 0.
func TestScenarioExactMatch(t *testing.T) {
	frag := build(forest.Text("x"))
	query := build(forest.Text("x"))
	if d := IndexDistance(query, frag); d != 0 {
		t.Fatalf("IndexDistance(exact match) = %d, want 0", d)
	}
}

// Scenario S3: a single-child rename costs exactly 1.
func TestScenarioSingleRename(t *testing.T) {
	frag := build(forest.Command("dot", build(forest.Text("V"))))
	query := build(forest.Command("dot", build(forest.Text("W"))))
	if d := IndexDistance(query, frag); d != 1 {
		t.Fatalf("IndexDistance(rename) = %d, want 1", d)
	}
}

func TestSuffixEnumerationMatchesTokens(t *testing.T) {
	f := build(forest.Text("a"), forest.Text("b"), forest.Text("c"))
	suffixes := forest.Suffixes(f)
	if len(suffixes) != 4 {
		t.Fatalf("len(suffixes) = %d, want 4", len(suffixes))
	}
	// Property 5: suffixes[i] equals tokens with the first i top-level
	// tokens removed.
	if forest.Cost(suffixes[1]) != 2 || forest.Cost(suffixes[2]) != 1 || suffixes[3] != nil {
		t.Fatalf("suffix costs = %d,%d,%v, want 2,1,nil", forest.Cost(suffixes[1]), forest.Cost(suffixes[2]), suffixes[3])
	}
}
