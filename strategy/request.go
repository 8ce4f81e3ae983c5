package strategy

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

type Mode string

const (
	ModeNavigate    Mode = "navigate"
	ModeSubresource Mode = "subresource"
)

type Destination string

const (
	DestinationDocument Destination = "document"
	DestinationStyle    Destination = "style"
	DestinationFont     Destination = "font"
	DestinationImage    Destination = "image"
	DestinationOther    Destination = "other"
)

var extensionDestinations = map[string]Destination{
	".html":  DestinationDocument,
	".htm":   DestinationDocument,
	".css":   DestinationStyle,
	".woff":  DestinationFont,
	".woff2": DestinationFont,
	".ttf":   DestinationFont,
	".otf":   DestinationFont,
	".eot":   DestinationFont,
	".png":   DestinationImage,
	".gif":   DestinationImage,
	".jpg":   DestinationImage,
	".jpeg":  DestinationImage,
	".webp":  DestinationImage,
	".avif":  DestinationImage,
	".svg":   DestinationImage,
	".ico":   DestinationImage,
}

// Request is the immutable description of an intercepted request.
type Request struct {
	// Absolute URL of the request.
	URL         *url.URL
	Method      string
	Mode        Mode
	Destination Destination
	Header      http.Header
	// Query parameters of the incoming URL. Kept when the URL is normalized.
	Query url.Values
	// Whether client validators and ranges are forwarded. Only set for requests
	// whose response is never stored, since a 304 or 206 cannot be cached.
	Conditional bool
	// The incoming request, used when the request is forwarded as is.
	Raw *http.Request
}

// NewRequest describes an incoming HTTP request.
// Mode and destination are taken from the Sec-Fetch-Mode and Sec-Fetch-Dest headers.
// Without them, a GET accepting HTML is taken to be a navigation,
// and the destination is inferred from the path extension.
func NewRequest(r *http.Request) Request {
	req := Request{
		URL:    absoluteURL(r),
		Method: r.Method,
		Header: r.Header,
		Raw:    r,
	}
	req.Query = req.URL.Query()

	fetchMode := strings.ToLower(r.Header.Get("Sec-Fetch-Mode"))
	fetchDest := strings.ToLower(r.Header.Get("Sec-Fetch-Dest"))
	if fetchMode == "" && fetchDest == "" {
		if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
			req.Mode = ModeNavigate
			req.Destination = DestinationDocument
		} else {
			req.Mode = ModeSubresource
			req.Destination = destinationFromPath(req.URL.Path)
		}
		return req
	}

	req.Mode = ModeSubresource
	if fetchMode == "navigate" {
		req.Mode = ModeNavigate
	}
	switch fetchDest {
	case "document", "iframe", "frame":
		req.Destination = DestinationDocument
	case "style":
		req.Destination = DestinationStyle
	case "font":
		req.Destination = DestinationFont
	case "image":
		req.Destination = DestinationImage
	case "", "empty":
		if req.Mode == ModeNavigate {
			req.Destination = DestinationDocument
		} else {
			req.Destination = destinationFromPath(req.URL.Path)
		}
	default:
		req.Destination = DestinationOther
	}
	return req
}

func (r Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// IsDocument tells whether the request expects an HTML document.
func (r Request) IsDocument() bool {
	return r.Mode == ModeNavigate || r.Destination == DestinationDocument
}

// WithURL returns a copy of the request with another URL.
func (r Request) WithURL(u *url.URL) Request {
	r.URL = u
	return r
}

func destinationFromPath(p string) Destination {
	if d, ok := extensionDestinations[strings.ToLower(path.Ext(p))]; ok {
		return d
	}
	return DestinationOther
}

func absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.IsAbs() {
		return &u
	}
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		u.Scheme = proto
	}
	u.Host = r.Host
	return &u
}
