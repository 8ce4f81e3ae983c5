package tee

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseSaverTees(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.Header().Set("Content-Type", "text/plain")
	rs.WriteHeader(http.StatusTeapot)
	rs.Write([]byte("Hello world"))

	if rs.StatusCode() != http.StatusTeapot || string(rs.Body()) != "Hello world" {
		t.Fatalf("Saved %d %s", rs.StatusCode(), rs.Body())
	}
	if rr.Code != http.StatusTeapot || rr.Body.String() != "Hello world" || rr.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("Wrote %d %s", rr.Code, rr.Body.String())
	}
}

func TestResponseSaverWithoutWriter(t *testing.T) {
	rs := NewResponseSaver(nil)
	rs.Write([]byte("body"))
	if rs.StatusCode() != http.StatusOK || string(rs.Body()) != "body" {
		t.Fatalf("Saved %d %s", rs.StatusCode(), rs.Body())
	}
	fail := errors.New("dial tcp: connection refused")
	rs.Fail(fail)
	if rs.Err() != fail {
		t.Fatalf("Error is %v", rs.Err())
	}
}
