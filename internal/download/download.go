// Package download opens artifact streams over HTTP.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zelotez/winemgr/internal/transport"
)

var (
	// ErrNotFound is returned for a 404 response.
	ErrNotFound = errors.New("artifact not found")
	// ErrUpstream is returned for 5xx and 429 responses.
	ErrUpstream = errors.New("upstream unavailable")
)

// Artifact is an open download. The caller must close Body.
type Artifact struct {
	Body io.ReadCloser
	Size int64 // -1 if unknown
}

// Fetcher downloads artifacts. It never retries.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// NewFetcher creates a Fetcher on the shared download client.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{userAgent: "winemgr/1.0"}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = transport.DownloadClient()
	}
	return f
}

// Open starts a GET for url and returns the response stream.
func (f *Fetcher) Open(ctx context.Context, url string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching artifact: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		size := int64(-1)
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				size = n
			}
		}
		return &Artifact{Body: resp.Body, Size: size}, nil

	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
