package include

import "strings"

type stripState int

const (
	stateOutside stripState = iota
	stateInsideTop
	stateInsideNested
)

// Strip reduces every outermost include directive in html to its opening marker.
// The body of the directive, any nested directives and the matching closing marker
// are dropped. An opening marker without a closing marker extends to the end of
// the document. A closing marker outside of any directive is kept as text.
func Strip(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	state := stateOutside
	depth := 0
	s := newScanner(html)
	for tok, ok := s.next(); ok; tok, ok = s.next() {
		switch state {
		case stateOutside:
			switch tok.kind {
			case tokenOpen:
				b.WriteString(tok.text)
				depth = 1
				state = stateInsideTop
			default:
				b.WriteString(tok.text)
			}
		case stateInsideTop, stateInsideNested:
			switch tok.kind {
			case tokenOpen:
				depth++
				state = stateInsideNested
			case tokenClose:
				depth--
				if depth == 0 {
					state = stateOutside
				} else if depth == 1 {
					state = stateInsideTop
				}
			}
		}
	}
	return b.String()
}

// Paths returns the distinct virtual paths of the opening markers in html, in document order.
func Paths(html string) []string {
	seen := make(map[string]struct{})
	paths := make([]string, 0)
	s := newScanner(html)
	for tok, ok := s.next(); ok; tok, ok = s.next() {
		if tok.kind != tokenOpen {
			continue
		}
		if _, ok := seen[tok.path]; ok {
			continue
		}
		seen[tok.path] = struct{}{}
		paths = append(paths, tok.path)
	}
	return paths
}
