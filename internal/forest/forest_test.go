package forest

import "testing"

func TestCostText(t *testing.T) {
	in := NewInterner()
	f := in.Build([]Token{Text("a"), Text("b"), Text("c")})
	if got := Cost(f); got != 3 {
		t.Fatalf("Cost = %d, want 3", got)
	}
}

func TestCostCommand(t *testing.T) {
	in := NewInterner()
	children := in.Build([]Token{Text("x")})
	f := in.Build([]Token{Command("dot", children)})
	if got := Cost(f); got != 2 {
		t.Fatalf("Cost = %d, want 2", got)
	}
}

func TestSuffixesLength(t *testing.T) {
	in := NewInterner()
	f := in.Build([]Token{Text("a"), Text("b"), Text("c")})
	suffixes := Suffixes(f)
	if len(suffixes) != TopLevelLength(f)+1 {
		t.Fatalf("len(suffixes) = %d, want %d", len(suffixes), TopLevelLength(f)+1)
	}
	want := [][]string{{"a", "b", "c"}, {"b", "c"}, {"c"}, {}}
	for i, s := range suffixes {
		got := labelsOf(s)
		if !sliceEqual(got, want[i]) {
			t.Errorf("suffixes[%d] = %v, want %v", i, got, want[i])
		}
	}
}

func TestSuffixesEmptyForest(t *testing.T) {
	suffixes := Suffixes(nil)
	if len(suffixes) != 1 || suffixes[0] != nil {
		t.Fatalf("Suffixes(nil) = %v, want [nil]", suffixes)
	}
}

func TestInternerCanonicalizesIdenticalForests(t *testing.T) {
	in := NewInterner()
	a := in.Build([]Token{Text("x"), Text("y")})
	b := in.Build([]Token{Text("x"), Text("y")})
	if a != b {
		t.Fatalf("Interner produced distinct pointers for identical content")
	}
}

func TestInternerConcatCanonical(t *testing.T) {
	in := NewInterner()
	a := in.Build([]Token{Text("x")})
	b := in.Build([]Token{Text("y")})
	c1 := in.Concat(a, b)
	c2 := in.Concat(a, b)
	if c1 != c2 {
		t.Fatalf("Concat not memoized: got distinct pointers for the same inputs")
	}
	want := in.Build([]Token{Text("x"), Text("y")})
	if !Equal(c1, want) {
		t.Fatalf("Concat(x, y) = %v, want %v", labelsOf(c1), labelsOf(want))
	}
}

func TestEqualAcrossInterners(t *testing.T) {
	a := NewInterner().Build([]Token{Text("x"), Text("y")})
	b := NewInterner().Build([]Token{Text("x"), Text("y")})
	if a == b {
		t.Fatalf("forests from distinct interners were pointer-equal by coincidence")
	}
	if !Equal(a, b) {
		t.Fatalf("Equal should hold across interners for structurally identical forests")
	}
}

func labelsOf(f *Forest) []string {
	out := []string{}
	for cur := f; cur != nil; cur = cur.Tail {
		out = append(out, cur.Head.Label)
	}
	return out
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
