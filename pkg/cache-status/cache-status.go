package cachestatus

import "fmt"

// Name identifies this cache in Cache-Status header values.
const Name = "swsi"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The router was configured to not handle this request.
	FwdBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdUriMiss FwdReason = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdMiss FwdReason = "miss"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdStale FwdReason = "stale"
)

type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	// Whether the forwarded response was stored.
	Stored bool
	// Free-form detail, usually the name of the partition involved.
	Detail string
}

func Hit(detail string) CacheStatus {
	return CacheStatus{Status: StatusHit, Detail: detail}
}

func Forward(reason FwdReason, detail string) CacheStatus {
	return CacheStatus{Status: StatusFwd, FwdReason: reason, Detail: detail}
}

func (cs CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

// String formats the status as a Cache-Status header value.
func (cs CacheStatus) String() string {
	status := fmt.Sprintf("%s; %s", Name, cs.Status)
	if cs.Status == StatusFwd && cs.FwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.FwdReason)
	}
	if cs.Stored {
		status = status + "; stored"
	}
	if cs.Detail != "" {
		status = status + "; detail=" + cs.Detail
	}
	return status
}
