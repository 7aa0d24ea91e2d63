// Package network performs the live fetches the offline worker tries first.
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtlprog/offlinecache/internal/domain"
)

// DefaultMaxBodyBytes bounds how much of a response body is read into memory.
const DefaultMaxBodyBytes int64 = 32 << 20

// hopHeaders are connection-scoped and never forwarded (RFC 9110 section 7.6.1).
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	Transport    http.RoundTripper
}

// Client fetches requests from a single origin.
type Client struct {
	origin  *url.URL
	http    *http.Client
	maxBody int64
}

// New creates a Client for the origin base URL, e.g. "http://localhost:8000".
func New(origin string, opts Options) (*Client, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin URL must be http or https, got %q", origin)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin URL has no host: %q", origin)
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Client{
		origin: u,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
			// Redirects are handed back to the caller, as a browser does for navigations it proxies.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBody: maxBody,
	}, nil
}

// Fetch performs the request live against the origin. Any HTTP status is a
// successful fetch; only transport failures return an error wrapping
// domain.ErrNetwork.
func (c *Client) Fetch(ctx context.Context, req *http.Request) (*domain.Response, error) {
	key := domain.RequestKey(req.URL)
	target, err := c.resolve(key)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", key, err)
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	removeHopHeaders(out.Header)
	out.ContentLength = req.ContentLength
	if req.Host != "" && req.Host != c.origin.Host {
		out.Header.Set("X-Forwarded-Host", req.Host)
	}

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, req.Method, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrNetwork, key, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s body exceeds %d bytes", domain.ErrInvalidResponse, key, c.maxBody)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	// A HEAD response has no body to measure, so the origin's length stands.
	if req.Method != http.MethodHead {
		header.Del("Content-Length")
	}

	return &domain.Response{
		URL:    key,
		Status: resp.StatusCode,
		Header: header,
		Body:   data,
		Source: domain.SourceNetwork,
	}, nil
}

func (c *Client) resolve(key string) (string, error) {
	ref, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("parse request key %q: %w", key, err)
	}
	target := *c.origin
	target.Path = strings.TrimSuffix(c.origin.Path, "/") + ref.Path
	target.RawPath = strings.TrimSuffix(c.origin.EscapedPath(), "/") + ref.EscapedPath()
	target.RawQuery = ref.RawQuery
	target.Fragment = ""
	return target.String(), nil
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
