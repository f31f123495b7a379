package forest

// Fragment is one corpus unit: a LaTeX source string and its preprocessed
// token forest, scoped to a document. FragmentID is opaque and preserved
// bit-exactly for external IO — any character-substitution rule belongs to
// the document-store collaborator, not here.
type Fragment struct {
	FragmentID string
	Source     string
	Tokens     *Forest
}

// IndexNode is what gets stored in the metric tree: a fragment's tokens (or
// one of its suffix forests — see Suffixes) plus that forest's own
// precomputed suffixes, used by internal/metrictree to let a query match
// anywhere within a larger fragment, not just at its start.
type IndexNode struct {
	DocID      string
	FragmentID string
	Tokens     *Forest
	Suffixes   []*Forest
}

// NewIndexNode builds the single IndexNode for a fragment at its own start
// (offset 0).
func NewIndexNode(docID string, frag Fragment) IndexNode {
	return IndexNode{
		DocID:      docID,
		FragmentID: frag.FragmentID,
		Tokens:     frag.Tokens,
		Suffixes:   Suffixes(frag.Tokens),
	}
}

// SuffixNodes expands a fragment into one IndexNode per suffix forest
// (including the fragment's own start and the trailing empty suffix),
// grounded on spec section 1's "storing every suffix-forest of every
// corpus fragment": this is what lets a query match as a left-anchored
// prefix starting anywhere inside the fragment, not only at offset 0.
func SuffixNodes(docID string, frag Fragment) []IndexNode {
	suffixes := Suffixes(frag.Tokens)
	nodes := make([]IndexNode, len(suffixes))
	for i, s := range suffixes {
		nodes[i] = IndexNode{
			DocID:      docID,
			FragmentID: frag.FragmentID,
			Tokens:     s,
			Suffixes:   Suffixes(s),
		}
	}
	return nodes
}

// Document is a set of fragments keyed by fragment_id, identified by an
// external doc_id.
type Document struct {
	DocID     string
	Fragments map[string]Fragment
}
