package swsi

import (
	"context"
	"net/url"

	"github.com/always-cache/swsi/pkg/include"
	"github.com/always-cache/swsi/strategy"
)

// IncludePlugin keeps HTML pages live with respect to their include fragments:
// nested include bodies are stripped before a page is stored,
// and includes are resolved against the current fragments when it is served.
type IncludePlugin struct {
	// Source of fragment text. Paths are resolved against the page URL.
	Source include.Source
	// Maximum number of concurrent fragment reads per page. Unlimited if 0.
	Concurrency int
}

func (p IncludePlugin) CacheWillUpdate(ctx context.Context, req strategy.Request, res *strategy.Response) (*strategy.Response, error) {
	if !res.IsHTML() {
		return res, nil
	}
	return res.WithBody([]byte(include.Strip(string(res.Body)))), nil
}

func (p IncludePlugin) CachedResponseWillBeUsed(ctx context.Context, req strategy.Request, res *strategy.Response) (*strategy.Response, error) {
	if !res.IsHTML() {
		return res, nil
	}
	resolver := include.Resolver{
		Source:      relativeSource(req.URL, p.Source),
		Concurrency: p.Concurrency,
	}
	composed, err := resolver.Resolve(ctx, string(res.Body))
	if err != nil {
		return nil, err
	}
	return res.WithBody([]byte(composed)), nil
}

// relativeSource resolves include paths against the page URL before reading them.
func relativeSource(page *url.URL, source include.Source) include.Source {
	return include.SourceFunc(func(ctx context.Context, p string) (string, error) {
		ref, err := url.Parse(p)
		if err != nil {
			return "", err
		}
		return source.Text(ctx, page.ResolveReference(ref).Path)
	})
}
