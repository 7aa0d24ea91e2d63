package domain

import (
	"net/http"
	"net/url"
	"time"
)

// RootURL is the request key of the origin's root document.
const RootURL = "/"

// ResponseSource tells where a response handed to a client came from.
type ResponseSource string

const (
	SourceNetwork  ResponseSource = "network"
	SourceCache    ResponseSource = "cache"
	SourceFallback ResponseSource = "fallback"
)

// Response is an HTTP response captured from the network or read back from a cache container.
type Response struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time

	// Source is set by the worker; it is never persisted.
	Source ResponseSource
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy so callers can mutate headers freely.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Entry pairs a request key with the response stored for it.
type Entry struct {
	URL      string
	Response *Response
}

// EntryInfo describes a stored entry without its body.
type EntryInfo struct {
	URL      string
	Status   int
	Size     int64
	StoredAt time.Time
}

// RequestKey returns the cache key for a request URL: path plus query, fragment dropped.
// An empty path is the root document.
func RequestKey(u *url.URL) string {
	if u == nil {
		return RootURL
	}
	key := u.EscapedPath()
	if key == "" {
		key = RootURL
	}
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// ParseRequestKey normalizes a raw URL string (absolute or relative) into a request key.
func ParseRequestKey(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return RequestKey(u), nil
}
