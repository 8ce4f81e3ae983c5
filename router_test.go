package swsi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	cachekey "github.com/always-cache/swsi/pkg/cache-key"
	"github.com/always-cache/swsi/precache"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

type fallbackPage struct{}

func (fallbackPage) Match(u *url.URL) (*strategy.Response, error) {
	if u.Path != DefaultFallbackPath {
		return nil, precache.ErrNotPrecached
	}
	return &strategy.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte("offline")}, nil
}

type handlerFunc func(ctx context.Context, req strategy.Request) (*strategy.Response, error)

func (f handlerFunc) Handle(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
	return f(ctx, req)
}

func testRequest(t *testing.T, raw string, mode strategy.Mode, dest strategy.Destination) strategy.Request {
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return strategy.Request{URL: u, Method: http.MethodGet, Mode: mode, Destination: dest, Header: http.Header{}}
}

func newTestRouter(routes ...Route) *Router {
	logger := zerolog.Nop()
	return NewRouter(routes, cachekey.NewCacheKeyer(false), NewFallback(fallbackPage{}, "", logger), logger)
}

func TestRouterFirstMatchWins(t *testing.T) {
	var got []string
	record := func(name string) Route {
		return Route{Name: name, Match: always, Handler: handlerFunc(func(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
			got = append(got, name)
			return &strategy.Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
		})}
	}
	rt := newTestRouter(record("first"), record("second"))

	rt.Route(context.Background(), testRequest(t, "https://s/a.css", strategy.ModeSubresource, strategy.DestinationStyle))

	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("Routed to %v", got)
	}
}

func TestRouterNormalizesNavigations(t *testing.T) {
	var seen string
	rt := newTestRouter(Route{Name: "page", Match: always, Handler: handlerFunc(func(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
		seen = req.URL.String()
		return &strategy.Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
	})})

	rt.Route(context.Background(), testRequest(t, "https://s/en/about?ref=nav", strategy.ModeNavigate, strategy.DestinationDocument))

	if seen != "https://s/en/about/" {
		t.Fatalf("Handler saw %s", seen)
	}
}

func TestRouterFallsBackOnErrorAndPanic(t *testing.T) {
	failing := handlerFunc(func(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
		return nil, strategy.ErrNoResponse
	})
	panicking := handlerFunc(func(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
		panic("boom")
	})
	for name, handler := range map[string]strategy.Strategy{"error": failing, "panic": panicking} {
		rt := newTestRouter(Route{Name: name, Match: always, Handler: handler})

		doc := rt.Route(context.Background(), testRequest(t, "https://s/missing/", strategy.ModeNavigate, strategy.DestinationDocument))
		if doc.StatusCode != http.StatusOK || string(doc.Body) != "offline" {
			t.Fatalf("%s: document got %d %s", name, doc.StatusCode, doc.Body)
		}
		img := rt.Route(context.Background(), testRequest(t, "https://s/a.png", strategy.ModeSubresource, strategy.DestinationImage))
		if img.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s: image got %d", name, img.StatusCode)
		}
	}
}

func TestRouterWithoutMatchFallsBack(t *testing.T) {
	rt := newTestRouter(Route{Name: "never", Match: func(strategy.Request) bool { return false }, Handler: handlerFunc(nil)})
	res := rt.Route(context.Background(), testRequest(t, "https://s/a.js", strategy.ModeSubresource, strategy.DestinationOther))
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Got %d", res.StatusCode)
	}
}

func TestFallbackWithMissingPage(t *testing.T) {
	f := NewFallback(fallbackPage{}, "/offline/", zerolog.Nop())
	res := f.Respond(testRequest(t, "https://s/missing/", strategy.ModeNavigate, strategy.DestinationDocument), errors.New("network down"))
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Got %d", res.StatusCode)
	}
}
