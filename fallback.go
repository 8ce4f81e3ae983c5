package swsi

import (
	"net/http"
	"net/url"

	cachestatus "github.com/always-cache/swsi/pkg/cache-status"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
)

// DefaultFallbackPath is the precached page served to documents when nothing else can be.
const DefaultFallbackPath = "/404/"

// Matcher looks responses up in the precache.
type Matcher interface {
	Match(u *url.URL) (*strategy.Response, error)
}

// Fallback supplies the response when no route could produce one.
type Fallback struct {
	precache Matcher
	path     *url.URL
	log      zerolog.Logger
}

func NewFallback(precache Matcher, fallbackPath string, logger zerolog.Logger) *Fallback {
	if fallbackPath == "" {
		fallbackPath = DefaultFallbackPath
	}
	u, err := url.Parse(fallbackPath)
	if err != nil {
		logger.Error().Err(err).Str("path", fallbackPath).Msg("Invalid fallback path, using default")
		u = &url.URL{Path: DefaultFallbackPath}
	}
	return &Fallback{
		precache: precache,
		path:     u,
		log:      logger.With().Str("component", "fallback").Logger(),
	}
}

// Respond returns the fallback page for document requests,
// and a 503 response for everything else or if the page is not precached.
func (f *Fallback) Respond(req strategy.Request, cause error) *strategy.Response {
	f.log.Debug().Err(cause).Str("url", req.URL.String()).Bool("document", req.IsDocument()).Msg("Serving fallback")
	if req.IsDocument() && f.precache != nil {
		res, err := f.precache.Match(f.path)
		if err == nil {
			res.CacheStatus = cachestatus.Hit("fallback")
			return res
		}
		f.log.Warn().Err(err).Str("path", f.path.Path).Msg("Fallback page not available")
	}
	return Unavailable()
}

// Unavailable is the synthetic response sent when nothing can be served.
func Unavailable() *strategy.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &strategy.Response{
		StatusCode:  http.StatusServiceUnavailable,
		Header:      header,
		Body:        []byte(http.StatusText(http.StatusServiceUnavailable)),
		CacheStatus: cachestatus.Forward(cachestatus.FwdMiss, "fallback"),
	}
}
