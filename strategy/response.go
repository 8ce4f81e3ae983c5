package strategy

import (
	"mime"
	"net/http"

	cachestatus "github.com/always-cache/swsi/pkg/cache-status"
	serializer "github.com/always-cache/swsi/pkg/response-serializer"
)

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// How the response was obtained. Sent to clients as the Cache-Status header.
	CacheStatus cachestatus.CacheStatus
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// WithBody returns a copy of the response with another body.
func (r *Response) WithBody(body []byte) *Response {
	c := *r
	c.Header = r.Header.Clone()
	c.Header.Del("Content-Length")
	c.Body = body
	return &c
}

// IsHTML tells whether the response content type is text/html.
func (r *Response) IsHTML() bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// Bytes returns the stored form of the response.
func (r *Response) Bytes() ([]byte, error) {
	return serializer.ResponseToBytes(r.StatusCode, r.Header, r.Body)
}

// ResponseFromBytes reads a response stored with Bytes.
func ResponseFromBytes(b []byte) (*Response, error) {
	status, header, body, err := serializer.BytesToResponse(b)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: status, Header: header, Body: body}, nil
}
