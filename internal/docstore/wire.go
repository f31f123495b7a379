package docstore

import "github.com/texsearch/texsearch/internal/forest"

// WireToken is the JSON shape of a single forest.Token as exchanged with the
// external preprocessor: {"kind": "text"|"command", "label": "...",
// "children": [...]}.
type WireToken struct {
	Kind     string      `json:"kind"`
	Label    string      `json:"label"`
	Children []WireToken `json:"children,omitempty"`
}

// WireForest is the JSON shape of a whole forest: an ordered list of
// WireToken, top-level.
type WireForest []WireToken

// ToForest builds a forest.Forest from the wire representation, interning
// it through in.
func (wf WireForest) ToForest(in *forest.Interner) *forest.Forest {
	tokens := make([]forest.Token, len(wf))
	for i, wt := range wf {
		if wt.Kind == "command" {
			tokens[i] = forest.Command(wt.Label, WireForest(wt.Children).ToForest(in))
		} else {
			tokens[i] = forest.Text(wt.Label)
		}
	}
	return in.Build(tokens)
}

// FromForest converts a forest.Forest into its wire representation, the
// inverse of ToForest.
func FromForest(f *forest.Forest) WireForest {
	tokens := forest.ToSlice(f)
	out := make(WireForest, len(tokens))
	for i, t := range tokens {
		if t.Kind == forest.KindCommand {
			out[i] = WireToken{Kind: "command", Label: t.Label, Children: FromForest(t.Children)}
		} else {
			out[i] = WireToken{Kind: "text", Label: t.Label}
		}
	}
	return out
}
