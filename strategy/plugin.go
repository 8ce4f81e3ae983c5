package strategy

import (
	"context"
	"net/http"
	"strings"
)

// Plugin hooks into the cache lifecycle of a strategy.
// A plugin implements any of the hook interfaces below.
type Plugin interface{}

// CacheWillUpdatePlugin is called with a network response before it is stored.
// It returns the response to store, or nil to skip storing.
// The response passed in must not be modified; return a copy instead.
type CacheWillUpdatePlugin interface {
	CacheWillUpdate(ctx context.Context, req Request, res *Response) (*Response, error)
}

// CachedResponseWillBeUsedPlugin is called with a stored response before it is served.
// An error makes the strategy treat the stored response as a miss.
// The response passed in must not be modified; return a copy instead.
type CachedResponseWillBeUsedPlugin interface {
	CachedResponseWillBeUsed(ctx context.Context, req Request, res *Response) (*Response, error)
}

// CacheableResponse only lets responses with the listed statuses
// (and, if set, header values) be stored.
// Status 0 stands for opaque responses and is accepted as a configured value,
// but a proxied response always has a real status.
type CacheableResponse struct {
	Statuses []int
	// Header values that must match, e.g. Content-Type: text/html; charset=UTF-8.
	Headers map[string]string
}

func (c CacheableResponse) CacheWillUpdate(ctx context.Context, req Request, res *Response) (*Response, error) {
	if c.IsCacheable(res) {
		return res, nil
	}
	return nil, nil
}

func (c CacheableResponse) IsCacheable(res *Response) bool {
	if len(c.Statuses) > 0 {
		found := false
		for _, status := range c.Statuses {
			if status == res.StatusCode {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for name, value := range c.Headers {
		if !strings.EqualFold(res.Header.Get(name), value) {
			return false
		}
	}
	return true
}

// defaultCacheable is used when no plugin decides what to store.
var defaultCacheable = CacheableResponse{Statuses: []int{http.StatusOK}}
