package swsi

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	tee "github.com/always-cache/swsi/pkg/response-writer-tee"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

// conditionalHeaders are dropped from requests whose response may be stored.
var conditionalHeaders = []string{
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
	"Range",
}

// Origin fetches responses from the static site server.
type Origin struct {
	url          url.URL
	reverseproxy httputil.ReverseProxy
	log          zerolog.Logger
}

// NewOrigin creates a fetcher for the origin at originURL.
// originHost, if set, is used as the Host header and TLS server name,
// e.g. when the origin URL is just an IP address.
func NewOrigin(originURL url.URL, originHost string, modifyResponse func(*http.Response) error, logger zerolog.Logger) *Origin {
	host := originURL.Host
	hostHeader := host
	transport := http.DefaultTransport
	if originHost != "" {
		hostHeader = originHost
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	o := &Origin{
		url: originURL,
		log: logger.With().Str("origin", originURL.String()).Logger(),
	}
	o.reverseproxy = httputil.ReverseProxy{
		Director:       createDirector(originURL.Scheme, host, hostHeader),
		Transport:      transport,
		ModifyResponse: modifyResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			w.(*tee.ResponseSaver).Fail(err)
		},
	}
	return o
}

// Fetch implements strategy.Fetcher.
func (o *Origin) Fetch(ctx context.Context, req strategy.Request) (res *strategy.Response, err error) {
	// the reverse proxy aborts with a panic when the body copy fails midway
	defer func() {
		if p := recover(); p != nil {
			if p != http.ErrAbortHandler {
				panic(p)
			}
			res, err = nil, fmt.Errorf("%w: response body aborted", strategy.ErrNetwork)
		}
	}()
	r, err := o.outgoing(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", strategy.ErrNetwork, err)
	}
	o.log.Trace().Str("method", r.Method).Str("url", r.URL.String()).Msg("Fetching from origin")
	rs := tee.NewResponseSaver(nil)
	o.reverseproxy.ServeHTTP(rs, r)
	if err := rs.Err(); err != nil {
		o.log.Warn().Err(err).Str("url", r.URL.String()).Msg("Origin request failed")
		return nil, fmt.Errorf("%w: %w", strategy.ErrNetwork, err)
	}
	return &strategy.Response{
		StatusCode: rs.StatusCode(),
		Header:     rs.Header().Clone(),
		Body:       rs.Body(),
	}, nil
}

// outgoing builds the request forwarded to the origin.
// The incoming request is reused when there is one, so that request bodies are forwarded.
func (o *Origin) outgoing(ctx context.Context, req strategy.Request) (*http.Request, error) {
	var r *http.Request
	if req.Raw != nil {
		r = req.Raw.Clone(ctx)
		r.RequestURI = ""
		r.Method = req.Method
	} else {
		var err error
		r, err = http.NewRequestWithContext(ctx, req.Method, "/", nil)
		if err != nil {
			return nil, err
		}
		if req.Header != nil {
			r.Header = req.Header.Clone()
		}
	}
	u := *req.URL
	r.URL = &u
	// bodies are stored and rewritten, so let the transport decompress them
	r.Header.Del("Accept-Encoding")
	if !req.Conditional {
		for _, h := range conditionalHeaders {
			r.Header.Del(h)
		}
	}
	return r, nil
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = hostHeader
	}
}
