package swsi

import (
	"context"
	"errors"
	"fmt"

	cachekey "github.com/always-cache/swsi/pkg/cache-key"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

// ErrNoRoute is passed to the fallback when no route matches a request.
var ErrNoRoute = errors.New("no matching route")

// Route maps the requests it matches to a handler.
type Route struct {
	Name    string
	Match   func(req strategy.Request) bool
	Handler strategy.Strategy
}

// Router picks a handler for each request from an ordered route table.
// The first matching route wins.
type Router struct {
	routes   []Route
	keyer    cachekey.CacheKeyer
	fallback *Fallback
	log      zerolog.Logger
}

func NewRouter(routes []Route, keyer cachekey.CacheKeyer, fallback *Fallback, logger zerolog.Logger) *Router {
	return &Router{
		routes:   routes,
		keyer:    keyer,
		fallback: fallback,
		log:      logger.With().Str("component", "router").Logger(),
	}
}

// Route produces the response for a request. It always returns a response:
// handler errors and panics are answered by the fallback.
func (rt *Router) Route(ctx context.Context, req strategy.Request) (res *strategy.Response) {
	req = req.WithURL(rt.keyer.Normalize(req.URL, req.IsNavigation()))
	route, ok := rt.find(req)
	if !ok {
		return rt.fallback.Respond(req, ErrNoRoute)
	}

	defer func() {
		if p := recover(); p != nil {
			rt.log.Error().Str("route", route.Name).Str("url", req.URL.String()).Interface("panic", p).Msg("Handler panicked")
			res = rt.fallback.Respond(req, fmt.Errorf("route %s panicked: %v", route.Name, p))
		}
	}()

	rt.log.Trace().Str("route", route.Name).Str("url", req.URL.String()).Msg("Routing request")
	res, err := route.Handler.Handle(ctx, req)
	if err == nil && res == nil {
		err = strategy.ErrNoResponse
	}
	if err != nil {
		rt.log.Debug().Err(err).Str("route", route.Name).Str("url", req.URL.String()).Msg("No response from route")
		return rt.fallback.Respond(req, err)
	}
	return res
}

func (rt *Router) find(req strategy.Request) (Route, bool) {
	for _, route := range rt.routes {
		if route.Match(req) {
			return route, true
		}
	}
	return Route{}, false
}
