package include

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrUnresolved is returned when an include path cannot be read from the source.
// The whole composition fails; partially expanded documents are never returned.
var ErrUnresolved = errors.New("unresolved include")

// Source provides the text of include fragments.
type Source interface {
	Text(ctx context.Context, path string) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, path string) (string, error)

func (f SourceFunc) Text(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

type Resolver struct {
	Source Source
	// Maximum number of concurrent fragment reads. Zero means no limit.
	Concurrency int
}

// Resolve expands every opening marker in html with the opening marker itself, the text of
// the referenced fragment and a closing marker spelled like the opening one. Each distinct path is read once.
// Text between markers is copied unchanged.
func (r Resolver) Resolve(ctx context.Context, html string) (string, error) {
	paths := Paths(html)
	if len(paths) == 0 {
		return html, nil
	}

	texts := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			text, err := r.Source.Text(gctx, path)
			if err != nil {
				return fmt.Errorf("%w %q: %w", ErrUnresolved, path, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	fragments := make(map[string]string, len(paths))
	for i, path := range paths {
		fragments[path] = texts[i]
	}

	var b strings.Builder
	s := newScanner(html)
	for tok, ok := s.next(); ok; tok, ok = s.next() {
		b.WriteString(tok.text)
		if tok.kind == tokenOpen {
			b.WriteString(fragments[tok.path])
			b.WriteString(tok.end)
		}
	}
	return b.String(), nil
}
