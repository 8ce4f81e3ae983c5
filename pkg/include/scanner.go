// Package include composes HTML documents from include directives of the form
//
//	<!-- #include virtual="/path/to/fragment.html" -->
//	...
//	<!-- #endinclude -->
//
// Strip runs on the write path, before a fetched page is stored, and reduces every
// outermost include to its bare opening marker. Resolve runs on the read path and
// expands each opening marker with the current text of the referenced fragment.
package include

import (
	"strings"
)

// EndMarker is the closing marker Resolve emits for an opening marker spelled
// `<!-- #include ... -->`. Other spellings get a closing marker with the same
// spacing and keyword case.
const EndMarker = "<!-- #endinclude -->"

const commentOpen = "<!--"
const commentClose = "-->"

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOpen
	tokenClose
)

// token is a span of the input. For opening markers, path holds the virtual path
// and end the closing marker spelled like the opening one.
type token struct {
	kind tokenKind
	text string
	path string
	end  string
}

// scanner splits an HTML document into text, opening marker and closing marker tokens.
// Every call to next consumes at least one byte, so malformed input cannot stall it.
type scanner struct {
	src string
	pos int
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

// next returns the next token and false once the input is exhausted.
func (s *scanner) next() (token, bool) {
	if s.pos >= len(s.src) {
		return token{}, false
	}
	start := s.pos
	// look for a directive at or after the current position
	search := start
	for {
		i := strings.Index(s.src[search:], commentOpen)
		if i < 0 {
			s.pos = len(s.src)
			return token{kind: tokenText, text: s.src[start:]}, true
		}
		at := search + i
		if tok, end, ok := parseDirective(s.src, at); ok {
			if at > start {
				// flush the text before the directive first
				s.pos = at
				return token{kind: tokenText, text: s.src[start:at]}, true
			}
			s.pos = end
			return tok, true
		}
		// an ordinary comment, keep looking after its opening
		search = at + len(commentOpen)
	}
}

// parseDirective parses an include or endinclude comment starting at src[at:].
// It returns the token, the offset just past the comment and whether a directive was found.
func parseDirective(src string, at int) (token, int, bool) {
	p := at + len(commentOpen)
	p = skipSpace(src, p)
	lead := src[at+len(commentOpen) : p]
	if p >= len(src) || src[p] != '#' {
		return token{}, 0, false
	}
	p++
	word, p := readWord(src, p)
	switch strings.ToLower(word) {
	case "endinclude":
		p = skipSpace(src, p)
		if !strings.HasPrefix(src[p:], commentClose) {
			return token{}, 0, false
		}
		end := p + len(commentClose)
		return token{kind: tokenClose, text: src[at:end]}, end, true
	case "include":
		p = skipSpace(src, p)
		attr, q := readWord(src, p)
		if !strings.EqualFold(attr, "virtual") {
			return token{}, 0, false
		}
		p = skipSpace(src, q)
		if p >= len(src) || src[p] != '=' {
			return token{}, 0, false
		}
		p = skipSpace(src, p+1)
		if p >= len(src) || (src[p] != '"' && src[p] != '\'') {
			return token{}, 0, false
		}
		quote := src[p]
		closing := strings.IndexByte(src[p+1:], quote)
		if closing < 0 {
			return token{}, 0, false
		}
		path := strings.TrimSpace(src[p+1 : p+1+closing])
		q = p + 1 + closing + 1
		p = skipSpace(src, q)
		if path == "" || !strings.HasPrefix(src[p:], commentClose) {
			return token{}, 0, false
		}
		end := p + len(commentClose)
		closeMarker := commentOpen + lead + "#" + endKeyword(word) + src[q:p] + commentClose
		return token{kind: tokenOpen, text: src[at:end], path: path, end: closeMarker}, end, true
	}
	return token{}, 0, false
}

// endKeyword returns the endinclude keyword in the case of the given include keyword.
func endKeyword(word string) string {
	if word == strings.ToUpper(word) {
		return "END" + word
	}
	if word[0] == 'I' {
		return "End" + strings.ToLower(word)
	}
	return "end" + word
}

func skipSpace(src string, p int) int {
	for p < len(src) {
		switch src[p] {
		case ' ', '\t', '\n', '\r', '\f':
			p++
		default:
			return p
		}
	}
	return p
}

func readWord(src string, p int) (string, int) {
	start := p
	for p < len(src) {
		c := src[p]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p++
			continue
		}
		break
	}
	return src[start:p], p
}
