package swsi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/always-cache/swsi/pkg/include"
	"github.com/always-cache/swsi/strategy"
)

func htmlResponse(body string) *strategy.Response {
	return &strategy.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func TestIncludePluginStripsBeforeStoring(t *testing.T) {
	p := IncludePlugin{}
	req := testRequest(t, "https://s/en/", strategy.ModeNavigate, strategy.DestinationDocument)
	res := htmlResponse(`a<!-- #include virtual="nav.html" --><nav><!-- #include virtual="logo.html" -->L<!-- #endinclude --></nav><!-- #endinclude -->b`)

	stored, err := p.CacheWillUpdate(context.Background(), req, res)
	if err != nil {
		t.Fatal(err)
	}
	if string(stored.Body) != `a<!-- #include virtual="nav.html" -->b` {
		t.Fatalf("Stored %s", stored.Body)
	}
	if string(res.Body) == string(stored.Body) {
		t.Fatalf("Network response was modified")
	}
}

func TestIncludePluginResolvesRelativeToPage(t *testing.T) {
	var asked []string
	p := IncludePlugin{Source: include.SourceFunc(func(ctx context.Context, path string) (string, error) {
		asked = append(asked, path)
		return "<nav/>", nil
	})}
	req := testRequest(t, "https://s/en/about/", strategy.ModeNavigate, strategy.DestinationDocument)

	res, err := p.CachedResponseWillBeUsed(context.Background(), req, htmlResponse(`<!-- #include virtual="../_includes/nav.html" -->`))
	if err != nil {
		t.Fatal(err)
	}
	if len(asked) != 1 || asked[0] != "/en/_includes/nav.html" {
		t.Fatalf("Asked for %v", asked)
	}
	if string(res.Body) != `<!-- #include virtual="../_includes/nav.html" --><nav/>`+include.EndMarker {
		t.Fatalf("Composed %s", res.Body)
	}
}

func TestIncludePluginIgnoresOtherContentTypes(t *testing.T) {
	p := IncludePlugin{Source: include.SourceFunc(func(ctx context.Context, path string) (string, error) {
		return "", errors.New("not called")
	})}
	req := testRequest(t, "https://s/a.css", strategy.ModeSubresource, strategy.DestinationStyle)
	res := &strategy.Response{StatusCode: http.StatusOK, Header: http.Header{"Content-Type": []string{"text/css"}}, Body: []byte(`/* <!-- #include virtual="x" --> */`)}

	used, err := p.CachedResponseWillBeUsed(context.Background(), req, res)
	if err != nil || string(used.Body) != string(res.Body) {
		t.Fatalf("Got %s (%v)", used.Body, err)
	}
}
