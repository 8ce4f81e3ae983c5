package cachekey

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("%s: %s", raw, err)
	}
	return u
}

func TestNormalizeIdempotent(t *testing.T) {
	keyer := NewCacheKeyer(false)
	for _, raw := range []string{
		"https://s/",
		"https://s",
		"https://s/a",
		"https://s/a/?x=1",
		"https://s/en/page?locale_fallback=true#top",
		"https://s/a%2Fb",
	} {
		once := keyer.Normalize(mustParse(t, raw), true)
		twice := keyer.Normalize(once, true)
		if once.String() != twice.String() {
			t.Fatalf("Normalizing %s is not idempotent: %s != %s", raw, once, twice)
		}
	}
}

func TestNormalizeStripsQuery(t *testing.T) {
	keyer := NewCacheKeyer(false)
	a := keyer.Key(mustParse(t, "https://s/a/?x=1"), true)
	b := keyer.Key(mustParse(t, "https://s/a/"), true)
	if a != b {
		t.Fatalf("Keys differ: %s != %s", a, b)
	}
}

func TestNormalizeAddsTrailingSlash(t *testing.T) {
	keyer := NewCacheKeyer(false)
	a := keyer.Key(mustParse(t, "https://s/a"), true)
	b := keyer.Key(mustParse(t, "https://s/a/"), true)
	if a != b || a != "https://s/a/" {
		t.Fatalf("Keys are %s and %s", a, b)
	}
	if root := keyer.Key(mustParse(t, "https://s"), true); root != "https://s/" {
		t.Fatalf("Root key is %s", root)
	}
}

func TestSubresourceQueryConfigurable(t *testing.T) {
	u := mustParse(t, "https://s/css/main.css?v=3")
	if key := NewCacheKeyer(false).Key(u, false); key != "https://s/css/main.css?v=3" {
		t.Fatalf("Key is %s", key)
	}
	if key := NewCacheKeyer(true).Key(u, false); key != "https://s/css/main.css" {
		t.Fatalf("Key is %s", key)
	}
}

func TestNormalizeDoesNotModifyArgument(t *testing.T) {
	u := mustParse(t, "https://s/a?x=1")
	Normalize(u, true, true)
	if u.String() != "https://s/a?x=1" {
		t.Fatalf("Argument modified: %s", u)
	}
}
