// Package strategy implements the caching strategies requests are routed to:
// cache-first, stale-while-revalidate and network-only.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/always-cache/swsi/cache"
	cachestatus "github.com/always-cache/swsi/pkg/cache-status"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNetwork wraps failures to get any response from the network.
	ErrNetwork = errors.New("network request failed")
	// ErrNoResponse is returned when neither the cache nor the network produced a response.
	ErrNoResponse = errors.New("no response")
)

// Fetcher gets responses from the network.
// It returns an error wrapping ErrNetwork when no response could be obtained.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Strategy produces a response for a request.
type Strategy interface {
	Handle(ctx context.Context, req Request) (*Response, error)
}

type Options struct {
	// Partition for stored responses. Not used by NetworkOnly.
	Partition *cache.Partition
	Fetcher   Fetcher
	Plugins   []Plugin
	// Logger to use. The zerolog no-op logger is used if nil.
	Logger *zerolog.Logger
}

type base struct {
	partition *cache.Partition
	fetcher   Fetcher
	plugins   []Plugin
	log       zerolog.Logger
	// coalesces concurrent background refreshes of one key
	group   singleflight.Group
	pending sync.WaitGroup
}

func newBase(opts Options, name string) *base {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ctx := logger.With().Str("strategy", name)
	if opts.Partition != nil {
		ctx = ctx.Str("partition", opts.Partition.Name())
	}
	return &base{
		partition: opts.Partition,
		fetcher:   opts.Fetcher,
		plugins:   opts.Plugins,
		log:       ctx.Logger(),
	}
}

// Wait blocks until all background work started by the strategy has finished.
func (b *base) Wait() {
	b.pending.Wait()
}

func (b *base) key(req Request) string {
	return req.URL.String()
}

func (b *base) detail() string {
	if b.partition == nil {
		return ""
	}
	return b.partition.Name()
}

// cachedResponse returns the stored response for the request, after the read plugins
// ran on it. Storage, decoding and plugin failures are logged and reported as a miss.
func (b *base) cachedResponse(ctx context.Context, req Request) (*Response, bool) {
	key := b.key(req)
	ce, err := b.partition.Match(key)
	if errors.Is(err, cache.ErrNotFound) {
		b.log.Trace().Str("key", key).Msg("Cache miss")
		return nil, false
	} else if err != nil {
		b.log.Error().Err(err).Str("key", key).Msg("Could not retrieve from cache")
		return nil, false
	}
	res, err := ResponseFromBytes(ce.Bytes)
	if err != nil {
		// corrupted entry, drop it and go to the network
		b.log.Error().Err(err).Str("key", key).Msg("Could not read stored response")
		if err := b.partition.Delete(key); err != nil {
			b.log.Error().Err(err).Str("key", key).Msg("Could not purge stored response")
		}
		return nil, false
	}
	for _, plugin := range b.plugins {
		if p, ok := plugin.(CachedResponseWillBeUsedPlugin); ok {
			res, err = p.CachedResponseWillBeUsed(ctx, req, res)
			if err != nil {
				b.log.Warn().Err(err).Str("key", key).Msg("Stored response unusable, treating as miss")
				return nil, false
			}
			if res == nil {
				return nil, false
			}
		}
	}
	res.CacheStatus = cachestatus.Hit(b.detail())
	return res, true
}

// fetchAndCache gets the response from the network and stores a copy if the plugins allow.
func (b *base) fetchAndCache(ctx context.Context, req Request, reason cachestatus.FwdReason) (*Response, error) {
	res, err := b.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	res.CacheStatus = cachestatus.Forward(reason, b.detail())
	stored, err := b.store(ctx, req, res)
	if err != nil {
		b.log.Error().Err(err).Str("key", b.key(req)).Msg("Could not write to cache")
	}
	res.CacheStatus.Stored = stored
	return res, nil
}

// store writes the response to the partition, unless a plugin decides against it.
func (b *base) store(ctx context.Context, req Request, res *Response) (bool, error) {
	toStore := res
	decided := false
	for _, plugin := range b.plugins {
		if p, ok := plugin.(CacheWillUpdatePlugin); ok {
			decided = true
			var err error
			toStore, err = p.CacheWillUpdate(ctx, req, toStore)
			if err != nil {
				return false, err
			}
			if toStore == nil {
				b.log.Trace().Str("key", b.key(req)).Int("status", res.StatusCode).Msg("Response not cacheable")
				return false, nil
			}
		}
	}
	if !decided && !defaultCacheable.IsCacheable(res) {
		return false, nil
	}
	bytes, err := toStore.Bytes()
	if err != nil {
		return false, err
	}
	if err := b.partition.Put(b.key(req), bytes); err != nil {
		return false, fmt.Errorf("could not store response: %w", err)
	}
	return true, nil
}

// revalidate refreshes the stored response in the background.
// The refresh is detached from the request: it is not cancelled with it.
func (b *base) revalidate(ctx context.Context, req Request) {
	key := b.key(req)
	bg := context.WithoutCancel(ctx)
	b.pending.Add(1)
	go func() {
		defer b.pending.Done()
		_, err, shared := b.group.Do(key, func() (interface{}, error) {
			return b.fetchAndCache(bg, req, cachestatus.FwdStale)
		})
		if err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("Could not revalidate stored response")
			return
		}
		b.log.Trace().Str("key", key).Bool("shared", shared).Msg("Revalidated stored response")
	}()
}
