// Package swsi serves a static site through named cache partitions,
// composing cached HTML pages from their include fragments at request time.
package swsi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/swsi/cache"
	cachekey "github.com/always-cache/swsi/pkg/cache-key"
	"github.com/always-cache/swsi/pkg/locale"
	"github.com/always-cache/swsi/pkg/preferences"
	"github.com/always-cache/swsi/precache"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

type Config struct {
	// Storage for cache entries.
	Cache cache.CacheProvider
	// Storage for client preferences. An in-memory store is used if nil.
	Preferences preferences.Store
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Assets to precache.
	Manifest precache.Manifest
	// Recognized locale codes, i.e. the first path segments of localized pages.
	Locales []string
	// Precached page served to documents when nothing else can be.
	// DefaultFallbackPath if empty.
	FallbackPath string
	// Also strip query parameters from subresource cache keys.
	// Navigation keys never have query parameters.
	StripSubresourceQuery bool
	// Key for signing client id cookies. A random key is used if empty,
	// in which case client ids do not survive restarts.
	CookieHashKey []byte
	// Mark client id cookies as secure.
	SecureCookie bool
	// Overrides of the default partition configurations, by partition name.
	Partitions map[string]PartitionConfig
	// Interval for purging expired entries. No purging if 0.
	SweepInterval time.Duration
	// Maximum number of concurrent fragment reads per page. Unlimited if 0.
	IncludeConcurrency int
	// Optional function for mutating the incoming request.
	RequestModifier func(*http.Request)
	// Optional function for transforming origin responses before they are stored.
	ResponseModifier func(*http.Response) error
}

// Engine is an http.Handler routing every request to its caching strategy.
type Engine struct {
	storage       *cache.Storage
	prefs         preferences.Store
	clients       *preferences.ClientIdentifier
	origin        *Origin
	precache      *precache.Precache
	router        *Router
	locales       locale.Locales
	log           zerolog.Logger
	modifyRequest func(*http.Request)
	// strategies with background work
	waiters []interface{ Wait() }
	stop    context.CancelFunc
}

// CreateEngine initializes the engine and starts the expiration sweeper if configured.
// The precache is not installed; call Install for that.
func CreateEngine(config Config) (*Engine, error) {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Logger()

	locales, err := locale.NewLocales(config.Locales)
	if err != nil {
		return nil, err
	}

	prefs := config.Preferences
	if prefs == nil {
		prefs = preferences.NewMemStore()
	}

	e := &Engine{
		storage:       cache.NewStorage(config.Cache, logger),
		prefs:         prefs,
		clients:       preferences.NewClientIdentifier(config.CookieHashKey),
		locales:       locales,
		log:           logger,
		modifyRequest: config.RequestModifier,
	}
	e.clients.Secure = config.SecureCookie
	e.origin = NewOrigin(config.OriginURL, config.OriginHost, config.ResponseModifier, logger)
	e.precache = precache.New(config.Manifest, precache.Options{
		Partition:   e.storage.Open(precache.PartitionName, cache.Policy{}),
		Fetcher:     e.origin,
		Concurrency: 8,
		Logger:      &logger,
	})

	routes := e.defaultRoutes(locale.Redirector{Locales: locales}, config.Partitions, config.IncludeConcurrency)
	fallback := NewFallback(e.precache, config.FallbackPath, logger)
	e.router = NewRouter(routes, cachekey.NewCacheKeyer(config.StripSubresourceQuery), fallback, logger)

	ctx, cancel := context.WithCancel(context.Background())
	e.stop = cancel
	if config.SweepInterval > 0 {
		go e.storage.Sweep(ctx, config.SweepInterval)
	}

	return e, nil
}

// Install brings the precache in line with the manifest:
// changed entries are fetched and entries no longer listed are removed.
func (e *Engine) Install(ctx context.Context) (installed, removed int, err error) {
	installed, err = e.precache.Install(ctx)
	if err != nil {
		return installed, 0, err
	}
	removed, err = e.precache.Cleanup()
	return installed, removed, err
}

// Wait blocks until background refreshes have finished.
func (e *Engine) Wait() {
	for _, w := range e.waiters {
		w.Wait()
	}
}

// Close stops the sweeper and waits for background refreshes.
func (e *Engine) Close() {
	e.stop()
	e.Wait()
}

// ServeHTTP implements the http.Handler interface.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e.modifyRequest != nil {
		e.modifyRequest(r)
	}
	client := e.clients.Identify(w, r)
	ctx := preferences.NewContext(r.Context(), preferences.Scoped(e.prefs, client))
	req := strategy.NewRequest(r.WithContext(ctx))
	res := e.router.Route(ctx, req)
	e.send(w, r, res)
}

func (e *Engine) send(w http.ResponseWriter, r *http.Request, res *strategy.Response) {
	copyHeader(w.Header(), res.Header)
	if r.Method != http.MethodHead && bodyAllowed(res.StatusCode) {
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	}
	w.Header().Add("Cache-Status", res.CacheStatus.String())
	w.WriteHeader(res.StatusCode)
	if r.Method != http.MethodHead && bodyAllowed(res.StatusCode) {
		if _, err := w.Write(res.Body); err != nil {
			e.log.Error().Err(err).Msg("Could not write response body to client")
		}
	}
	e.logRequest(r, res)
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

func (e *Engine) logRequest(r *http.Request, res *strategy.Response) {
	cs := res.CacheStatus
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	e.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("code", res.StatusCode).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Str("detail", cs.Detail).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// forwarding headers set by the origin's own proxies are not passed on
		if k == "X-Forwarded-For" || k == "X-Forwarded-Proto" || k == "X-Forwarded-Host" {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
