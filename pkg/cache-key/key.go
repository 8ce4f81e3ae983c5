package cachekey

import (
	"net/url"
	"strings"
)

// CacheKeyer turns request URLs into cache keys.
type CacheKeyer struct {
	// Strip query parameters from subresource URLs as well.
	// Navigation URLs always lose their query.
	StripSubresourceQuery bool
}

func NewCacheKeyer(stripSubresourceQuery bool) CacheKeyer {
	return CacheKeyer{
		StripSubresourceQuery: stripSubresourceQuery,
	}
}

// Normalize returns the canonical form of the given URL.
// The query is removed from navigation URLs (and from subresource URLs if configured),
// and a trailing slash is added to the path of navigation URLs.
// The fragment is always dropped.
// The returned URL is a copy; the argument is not modified.
func (c CacheKeyer) Normalize(u *url.URL, navigate bool) *url.URL {
	return Normalize(u, navigate, navigate || c.StripSubresourceQuery)
}

// Key returns the cache key for the given URL.
func (c CacheKeyer) Key(u *url.URL, navigate bool) string {
	return c.Normalize(u, navigate).String()
}

// Normalize is the configuration-free form of CacheKeyer.Normalize.
// It is idempotent: normalizing a normalized URL returns an equal URL.
func Normalize(u *url.URL, navigate, stripQuery bool) *url.URL {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	if stripQuery {
		n.RawQuery = ""
		n.ForceQuery = false
	}
	if navigate {
		if n.Path == "" {
			n.Path = "/"
		} else if !strings.HasSuffix(n.Path, "/") {
			n.Path += "/"
		}
		if n.RawPath != "" && !strings.HasSuffix(n.RawPath, "/") {
			n.RawPath += "/"
		}
	}
	return &n
}
