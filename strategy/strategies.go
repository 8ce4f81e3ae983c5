package strategy

import (
	"context"
	"fmt"
	"net/http"

	cachestatus "github.com/always-cache/swsi/pkg/cache-status"
)

// CacheFirst serves stored responses without contacting the network.
// On a miss, the network response is stored and returned.
type CacheFirst struct {
	*base
}

func NewCacheFirst(opts Options) *CacheFirst {
	return &CacheFirst{newBase(opts, "cache-first")}
}

func (s *CacheFirst) Handle(ctx context.Context, req Request) (*Response, error) {
	if res, ok := s.cachedResponse(ctx, req); ok {
		return res, nil
	}
	res, err := s.fetchAndCache(ctx, req, cachestatus.FwdUriMiss)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, err)
	}
	return res, nil
}

// StaleWhileRevalidate serves stored responses immediately and refreshes them
// in the background. On a miss, it waits for the network.
type StaleWhileRevalidate struct {
	*base
}

func NewStaleWhileRevalidate(opts Options) *StaleWhileRevalidate {
	return &StaleWhileRevalidate{newBase(opts, "stale-while-revalidate")}
}

func (s *StaleWhileRevalidate) Handle(ctx context.Context, req Request) (*Response, error) {
	if res, ok := s.cachedResponse(ctx, req); ok {
		s.revalidate(ctx, req)
		return res, nil
	}
	res, err := s.fetchAndCache(ctx, req, cachestatus.FwdUriMiss)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, err)
	}
	return res, nil
}

// NetworkOnly forwards requests without caching.
type NetworkOnly struct {
	*base
}

func NewNetworkOnly(opts Options) *NetworkOnly {
	opts.Partition = nil
	return &NetworkOnly{newBase(opts, "network-only")}
}

func (s *NetworkOnly) Handle(ctx context.Context, req Request) (*Response, error) {
	req.Conditional = true
	res, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, err)
	}
	reason := cachestatus.FwdBypass
	if req.Method != http.MethodGet {
		reason = cachestatus.FwdMethod
	}
	res.CacheStatus = cachestatus.Forward(reason, "")
	return res, nil
}
