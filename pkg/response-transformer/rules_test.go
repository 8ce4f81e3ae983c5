package responsetransformer

import (
	"net/http"
	"testing"
)

func TestRuleFinder(t *testing.T) {
	makeReq := func(method, path string) *http.Request {
		req, _ := http.NewRequest(method, path, nil)
		return req
	}

	rules := Rules{
		Rule{Prefix: "/_includes/", Headers: map[string]string{"Content-Type": "text/html"}},
		Rule{Query: map[string]string{"v": ""}, Headers: map[string]string{"X-Versioned": "1"}},
		Rule{Defaults: map[string]string{"Content-Type": "application/octet-stream"}},
	}

	if rule := rules.find(makeReq("GET", "/_includes/nav.html")); rule == nil || rule.Prefix != "/_includes/" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeReq("GET", "/app.css?v=2")); rule == nil || rule.Headers["X-Versioned"] != "1" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeReq("GET", "/app.css")); rule == nil || rule.Defaults == nil {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeReq("POST", "/_includes/nav.html")); rule != nil {
		t.Fatal("Incorrect rule")
	}
}

func TestApply(t *testing.T) {
	req, _ := http.NewRequest("GET", "/_includes/nav.html", nil)
	res := &http.Response{StatusCode: http.StatusOK, Header: make(http.Header), Request: req}
	rules := Rules{Rule{
		Defaults: map[string]string{"Content-Type": "text/html"},
		Headers:  map[string]string{"X-Fragment": "1"},
	}}

	// default applies when the header is missing
	rules.Apply(res)
	if ct := res.Header.Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Content-Type header wrong, is '%s'", ct)
	}

	// default does not replace an existing header
	res.Header.Set("Content-Type", "text/plain")
	rules.Apply(res)
	if ct := res.Header.Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("Content-Type header wrong, is '%s'", ct)
	}
	if h := res.Header.Get("X-Fragment"); h != "1" {
		t.Fatalf("X-Fragment header wrong, is '%s'", h)
	}

	// failed responses are left alone
	failed := &http.Response{StatusCode: http.StatusNotFound, Header: make(http.Header), Request: req}
	rules.Apply(failed)
	if len(failed.Header) != 0 {
		t.Fatalf("Headers set on failed response: %v", failed.Header)
	}
}
