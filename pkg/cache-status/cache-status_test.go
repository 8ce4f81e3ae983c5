package cachestatus

import "testing"

func TestCacheStatusString(t *testing.T) {
	if s := Hit("pages-cache").String(); s != "swsi; hit; detail=pages-cache" {
		t.Fatalf("Status is %s", s)
	}
	cs := Forward(FwdUriMiss, "webfonts")
	cs.Stored = true
	if s := cs.String(); s != "swsi; fwd=uri-miss; stored; detail=webfonts" {
		t.Fatalf("Status is %s", s)
	}
	if s := Forward(FwdBypass, "").String(); s != "swsi; fwd=bypass" {
		t.Fatalf("Status is %s", s)
	}
}
