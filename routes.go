package swsi

import (
	"context"
	"net/http"
	"time"

	"github.com/always-cache/swsi/cache"
	cachestatus "github.com/always-cache/swsi/pkg/cache-status"
	"github.com/always-cache/swsi/pkg/locale"
	"github.com/always-cache/swsi/pkg/preferences"
	"github.com/always-cache/swsi/precache"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

const (
	PagesPartition  = "pages-cache"
	StylesPartition = "stylesheets"
	FontsPartition  = "webfonts"
	ImagesPartition = "images-cache"
)

// PartitionConfig is the eviction policy of a partition
// and the statuses of the responses it stores.
type PartitionConfig struct {
	cache.Policy `yaml:",inline"`
	Statuses     []int `yaml:"statuses"`
}

// DefaultPartitions are the partitions of the default routes.
var DefaultPartitions = map[string]PartitionConfig{
	PagesPartition: {
		Statuses: []int{http.StatusOK, http.StatusMovedPermanently, http.StatusNotFound},
	},
	StylesPartition: {},
	FontsPartition: {
		Policy:   cache.Policy{MaxEntries: 30, MaxAge: 365 * 24 * time.Hour},
		Statuses: []int{0, http.StatusOK},
	},
	ImagesPartition: {
		Policy: cache.Policy{MaxEntries: 50, MaxAge: 30 * 24 * time.Hour},
	},
}

// partitionConfig returns the default configuration of a partition with the overrides applied.
func partitionConfig(name string, overrides map[string]PartitionConfig) PartitionConfig {
	c := DefaultPartitions[name]
	o, ok := overrides[name]
	if !ok {
		return c
	}
	if o.MaxEntries != 0 {
		c.MaxEntries = o.MaxEntries
	}
	if o.MaxAge != 0 {
		c.MaxAge = o.MaxAge
	}
	if len(o.Statuses) > 0 {
		c.Statuses = o.Statuses
	}
	return c
}

// localeHandler redirects navigations to the preferred locale
// and hands the rest to the page strategy.
type localeHandler struct {
	redirector locale.Redirector
	next       strategy.Strategy
	log        zerolog.Logger
}

func (h localeHandler) Handle(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
	preferred, ok, err := preferences.FromContext(ctx).Get(ctx, preferences.KeyLang)
	if err != nil {
		h.log.Error().Err(err).Msg("Could not read locale preference")
		ok = false
	}
	u := *req.URL
	u.RawQuery = req.Query.Encode()
	if target := h.redirector.Redirect(&u, preferred, ok); target != nil {
		h.log.Debug().Str("from", u.Path).Str("to", target.Path).Msg("Redirecting to preferred locale")
		return redirect(target.RequestURI()), nil
	}
	return h.next.Handle(ctx, req)
}

func redirect(location string) *strategy.Response {
	header := http.Header{}
	header.Set("Location", location)
	header.Set("Cache-Control", "no-store")
	return &strategy.Response{
		StatusCode:  locale.Status,
		Header:      header,
		CacheStatus: cachestatus.Forward(cachestatus.FwdBypass, "locale"),
	}
}

func notGet(req strategy.Request) bool {
	return req.Method != http.MethodGet
}

func precached(p *precache.Precache) func(strategy.Request) bool {
	return func(req strategy.Request) bool {
		return p.Has(req.URL)
	}
}

func destinationIs(d strategy.Destination) func(strategy.Request) bool {
	return func(req strategy.Request) bool {
		return req.Destination == d
	}
}

func always(strategy.Request) bool {
	return true
}

// defaultRoutes builds the route table:
// non-GET requests and unmatched requests go to the network,
// navigations are redirected to the preferred locale or served stale-while-revalidate
// with includes composed, precached URLs are served from the precache,
// and stylesheets, fonts and images have their own partitions.
func (e *Engine) defaultRoutes(redirector locale.Redirector, overrides map[string]PartitionConfig, includeConcurrency int) []Route {
	opts := func(name string, plugins ...strategy.Plugin) strategy.Options {
		c := partitionConfig(name, overrides)
		if len(c.Statuses) > 0 {
			plugins = append([]strategy.Plugin{strategy.CacheableResponse{Statuses: c.Statuses}}, plugins...)
		}
		return strategy.Options{
			Partition: e.storage.Open(name, c.Policy),
			Fetcher:   e.origin,
			Plugins:   plugins,
			Logger:    &e.log,
		}
	}

	network := strategy.NewNetworkOnly(strategy.Options{Fetcher: e.origin, Logger: &e.log})
	pages := strategy.NewStaleWhileRevalidate(opts(PagesPartition, IncludePlugin{
		Source:      e.precache,
		Concurrency: includeConcurrency,
	}))
	styles := strategy.NewStaleWhileRevalidate(opts(StylesPartition))
	fonts := strategy.NewCacheFirst(opts(FontsPartition))
	images := strategy.NewCacheFirst(opts(ImagesPartition))
	e.waiters = append(e.waiters, pages, styles)

	return []Route{
		{Name: "non-get", Match: notGet, Handler: network},
		{Name: "navigation", Match: strategy.Request.IsNavigation, Handler: localeHandler{
			redirector: redirector,
			next:       pages,
			log:        e.log,
		}},
		{Name: "precache", Match: precached(e.precache), Handler: e.precache},
		{Name: "style", Match: destinationIs(strategy.DestinationStyle), Handler: styles},
		{Name: "font", Match: destinationIs(strategy.DestinationFont), Handler: fonts},
		{Name: "image", Match: destinationIs(strategy.DestinationImage), Handler: images},
		{Name: "network", Match: always, Handler: network},
	}
}
