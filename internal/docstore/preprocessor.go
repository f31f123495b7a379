package docstore

import "strings"

// LocalPreprocessor is a minimal, dependency-free LaTeX-to-forest tokenizer
// used when no external preprocessor URL is configured. The real
// preprocessor is an external collaborator (per spec) with its own
// normalization rules; this fallback exists only so the CLI and tests can
// run end-to-end without one. It recognizes `\command{...}` as a Command
// token with its brace group tokenized as children, bare `{...}` groups as
// transparent grouping (their contents are spliced into the surrounding
// sequence), and everything else as whitespace-delimited Text tokens.
type LocalPreprocessor struct{}

// NewLocalPreprocessor builds a LocalPreprocessor.
func NewLocalPreprocessor() *LocalPreprocessor {
	return &LocalPreprocessor{}
}

// Preprocess tokenizes latex into a WireForest.
func (p *LocalPreprocessor) Preprocess(latex string) (*WireForest, error) {
	toks := tokenizeLatex(latex)
	wf := WireForest(toks)
	return &wf, nil
}

func tokenizeLatex(s string) []WireToken {
	pos := 0
	return parseSequence(s, &pos, false)
}

// parseSequence reads tokens until end of string or, if inGroup, a matching
// closing brace (consumed by the caller). It never returns an error: a '}'
// outside any group is skipped, and a '{' with no matching '}' groups
// everything up to the end of the string.
func parseSequence(s string, pos *int, inGroup bool) []WireToken {
	var out []WireToken
	for *pos < len(s) {
		c := s[*pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			*pos++
		case inGroup && c == '}':
			*pos++
			return out
		case c == '{':
			*pos++
			inner := parseSequence(s, pos, true)
			out = append(out, inner...)
		case c == '\\':
			*pos++
			name := readIdentifier(s, pos)
			if name == "" {
				// Lone backslash (e.g. "\\" line break or "\$"): treat the
				// next character, if any, as the command name.
				if *pos < len(s) {
					name = string(s[*pos])
					*pos++
				}
			}
			var children []WireToken
			if *pos < len(s) && s[*pos] == '{' {
				*pos++
				children = parseSequence(s, pos, true)
			}
			out = append(out, WireToken{Kind: "command", Label: name, Children: children})
		default:
			word := readWord(s, pos)
			if word != "" {
				out = append(out, WireToken{Kind: "text", Label: word})
			} else {
				*pos++
			}
		}
	}
	return out
}

func readIdentifier(s string, pos *int) string {
	start := *pos
	for *pos < len(s) && isAlpha(s[*pos]) {
		*pos++
	}
	return s[start:*pos]
}

func readWord(s string, pos *int) string {
	start := *pos
	for *pos < len(s) {
		c := s[*pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '{' || c == '}' || c == '\\' {
			break
		}
		*pos++
	}
	return strings.TrimSpace(s[start:*pos])
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
