package swsi

import (
	"compress/gzip"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	responsetransformer "github.com/always-cache/swsi/pkg/response-transformer"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

func TestOriginFetchAppliesResponseRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<nav></nav>"))
	}))
	defer srv.Close()
	originURL, _ := url.Parse(srv.URL)
	rules := responsetransformer.Rules{{Prefix: "/_includes/", Headers: map[string]string{"Content-Type": "text/html"}}}
	o := NewOrigin(*originURL, "", rules.Apply, zerolog.Nop())

	res, err := o.Fetch(t.Context(), testRequest(t, "https://site.example/_includes/nav.html", strategy.ModeSubresource, strategy.DestinationOther))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != "<nav></nav>" || !res.IsHTML() {
		t.Fatalf("Got %d %s (%s)", res.StatusCode, res.Body, res.Header.Get("Content-Type"))
	}
}

func TestOriginFetchDecompresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			w.Write([]byte("plain"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("compressed"))
		gz.Close()
	}))
	defer srv.Close()
	originURL, _ := url.Parse(srv.URL)
	o := NewOrigin(*originURL, "", nil, zerolog.Nop())

	req := testRequest(t, "https://site.example/", strategy.ModeNavigate, strategy.DestinationDocument)
	req.Header.Set("Accept-Encoding", "br")
	res, err := o.Fetch(t.Context(), req)
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "compressed" || res.Header.Get("Content-Encoding") != "" {
		t.Fatalf("Got %s (%s)", res.Body, res.Header.Get("Content-Encoding"))
	}
}

func TestOriginFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	originURL, _ := url.Parse(srv.URL)
	srv.Close()
	o := NewOrigin(*originURL, "", nil, zerolog.Nop())

	_, err := o.Fetch(t.Context(), testRequest(t, "https://site.example/", strategy.ModeNavigate, strategy.DestinationDocument))
	if !errors.Is(err, strategy.ErrNetwork) {
		t.Fatalf("Error is %v", err)
	}
}

func TestOriginFetchDropsValidatorsUnlessConditional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("full"))
	}))
	defer srv.Close()
	originURL, _ := url.Parse(srv.URL)
	o := NewOrigin(*originURL, "", nil, zerolog.Nop())

	req := testRequest(t, "https://site.example/images/a.png", strategy.ModeSubresource, strategy.DestinationImage)
	req.Header.Set("If-None-Match", `"v1"`)
	req.Header.Set("Range", "bytes=0-10")
	res, err := o.Fetch(t.Context(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != "full" {
		t.Fatalf("Got %d %s", res.StatusCode, res.Body)
	}
	if req.Header.Get("If-None-Match") == "" {
		t.Fatalf("Incoming request was modified")
	}

	req.Conditional = true
	if res, err = o.Fetch(t.Context(), req); err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNotModified {
		t.Fatalf("Conditional request got %d", res.StatusCode)
	}
}
