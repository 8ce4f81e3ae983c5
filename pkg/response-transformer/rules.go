// Package responsetransformer sets headers on origin responses before they are stored,
// e.g. to give include fragments a content type the origin does not send.
package responsetransformer

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type Rules []Rule

// Rule matches GET requests by path, path prefix and query parameters.
// Empty fields match everything.
type Rule struct {
	Prefix string            `yaml:"prefix"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query"`
	// Headers set only if the origin did not send them.
	Defaults map[string]string `yaml:"defaults"`
	// Headers set regardless of what the origin sent.
	Headers map[string]string `yaml:"headers"`
}

// Apply applies the first matching rule to successful responses.
// It has the signature of httputil.ReverseProxy.ModifyResponse.
func (r Rules) Apply(res *http.Response) error {
	if res.StatusCode != http.StatusOK || res.Request == nil {
		return nil
	}
	if rule := r.find(res.Request); rule != nil {
		applyRuleToResponse(*rule, res)
	}
	return nil
}

func applyRuleToResponse(rule Rule, res *http.Response) {
	for name, value := range rule.Defaults {
		if res.Header.Get(name) == "" {
			log.Trace().Msgf("Applying default %s header", name)
			res.Header.Set(name, value)
		}
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		res.Header.Set(name, value)
	}
}

func (r Rules) find(req *http.Request) *Rule {
	if req.Method != http.MethodGet {
		return nil
	}
rulesLoop:
	for _, rule := range r {
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &rule
	}
	return nil
}
