// Package locale decides when a navigation should be redirected to the preferred locale.
package locale

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// FallbackParam marks a request intentionally served in another locale.
// Such requests are never redirected, which breaks redirect loops.
const FallbackParam = "locale_fallback"

// Locales is the set of recognized locale codes, i.e. the first path segments
// that denote a language variant of a page.
type Locales struct {
	codes []string
	set   map[string]struct{}
}

// NewLocales validates the codes as BCP 47 language tags.
// The codes are kept as given, since they have to match path segments exactly.
func NewLocales(codes []string) (Locales, error) {
	l := Locales{set: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		if code == "" || strings.Contains(code, "/") {
			return Locales{}, fmt.Errorf("invalid locale code %q", code)
		}
		if _, err := language.Parse(code); err != nil {
			return Locales{}, fmt.Errorf("invalid locale code %q: %w", code, err)
		}
		if _, ok := l.set[code]; ok {
			continue
		}
		l.set[code] = struct{}{}
		l.codes = append(l.codes, code)
	}
	return l, nil
}

func (l Locales) Has(code string) bool {
	_, ok := l.set[code]
	return ok
}

func (l Locales) Codes() []string {
	return append([]string(nil), l.codes...)
}

// Redirector redirects navigations whose locale segment differs from the preferred locale.
type Redirector struct {
	Locales Locales
}

// Redirect returns the URL to redirect to, or nil if the request should be served as is.
// preferred is the stored locale preference; ok tells whether one is stored.
// Without a stored preference, or with one that is not a recognized locale,
// nothing is redirected.
func (r Redirector) Redirect(u *url.URL, preferred string, ok bool) *url.URL {
	if !ok || preferred == "" {
		return nil
	}
	if u.Query().Get(FallbackParam) == "true" {
		return nil
	}
	segments := strings.Split(u.Path, "/")
	if len(segments) < 2 {
		return nil
	}
	current := segments[1]
	if !r.Locales.Has(current) || current == preferred || !r.Locales.Has(preferred) {
		return nil
	}
	segments[1] = preferred
	target := *u
	target.Path = strings.Join(segments, "/")
	target.RawPath = ""
	return &target
}

// Status is the status code used for locale redirects.
const Status = http.StatusFound
