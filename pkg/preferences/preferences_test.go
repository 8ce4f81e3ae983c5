package preferences

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/always-cache/swsi/cache"

	"golang.org/x/sync/errgroup"
)

func stores(t *testing.T) map[string]Store {
	sqlite, err := NewSQLiteStore("file:preferences-test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Could not open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemStore(),
		"sqlite": sqlite,
	}
}

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		alice := Scoped(store, "alice-"+name)
		bob := Scoped(store, "bob-"+name)

		if _, ok, err := alice.Get(ctx, KeyLang); ok || err != nil {
			t.Fatalf("%s: lang should be unset (%v)", name, err)
		}
		if err := alice.Set(ctx, KeyLang, "fr"); err != nil {
			t.Fatalf("%s: set failed: %v", name, err)
		}
		if err := alice.Set(ctx, KeyLang, "en"); err != nil {
			t.Fatalf("%s: overwrite failed: %v", name, err)
		}
		if value, ok, err := alice.Get(ctx, KeyLang); !ok || err != nil || value != "en" {
			t.Fatalf("%s: lang is %q (%v, %v)", name, value, ok, err)
		}
		if _, ok, _ := bob.Get(ctx, KeyLang); ok {
			t.Fatalf("%s: preferences leaked between clients", name)
		}
	}
}

func TestStoreSharesCacheDB(t *testing.T) {
	ctx := context.Background()
	sqliteCache, err := cache.NewSQLiteCache("file:preferences-shared-test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Could not open cache: %v", err)
	}
	defer sqliteCache.Close()
	store, err := NewSQLiteStoreWithDB(sqliteCache.DB())
	if err != nil {
		t.Fatalf("Could not open store: %v", err)
	}

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			return sqliteCache.Put("pages-cache", cache.CacheEntry{Key: fmt.Sprintf("/%d/", i), StoredAt: time.Now(), UsedAt: time.Now()})
		})
		g.Go(func() error {
			return store.Set(ctx, fmt.Sprintf("client-%d", i), KeyLang, "en")
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent write failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if n, err := sqliteCache.Len("pages-cache"); err != nil || n != 20 {
		t.Fatalf("Cache has %d entries (%v) after closing the store", n, err)
	}
}

func TestPrefsFromContext(t *testing.T) {
	ctx := context.Background()
	if _, ok, err := FromContext(ctx).Get(ctx, KeyLang); ok || err != nil {
		t.Fatal("Empty preferences should report unset values")
	}
	store := NewMemStore()
	store.Set(ctx, "c", KeyLang, "de")
	ctx = NewContext(ctx, Scoped(store, "c"))
	if value, ok, _ := FromContext(ctx).Get(ctx, KeyLang); !ok || value != "de" {
		t.Fatalf("lang is %q", value)
	}
}

func TestClientIdentifierIssuesAndReadsCookie(t *testing.T) {
	identifier := NewClientIdentifier([]byte("0123456789abcdef0123456789abcdef"))

	rr := httptest.NewRecorder()
	id := identifier.Identify(rr, httptest.NewRequest("GET", "/", nil))
	cookies := rr.Result().Cookies()
	if id == "" || len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("Issued id %q with cookies %v", id, cookies)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	if again := identifier.Identify(rr, r); again != id {
		t.Fatalf("Identified %q, expected %q", again, id)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("Known client got a new cookie")
	}
}

func TestClientIdentifierRejectsForgedCookie(t *testing.T) {
	identifier := NewClientIdentifier([]byte("0123456789abcdef0123456789abcdef"))
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
	if _, ok := identifier.Lookup(r); ok {
		t.Fatal("Forged cookie accepted")
	}
}
