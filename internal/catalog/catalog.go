// Package catalog queries the remote release index of runtime builds and
// normalizes it into installable release descriptors.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zelotez/winemgr/internal/logging"
	"github.com/zelotez/winemgr/internal/transport"
)

const (
	// DefaultBaseURL is the GitHub API root.
	DefaultBaseURL = "https://api.github.com"

	// ArchiveSuffix selects the installable asset of a release.
	ArchiveSuffix = ".tar.gz"

	// maxResponseBytes caps the index response (10 MiB).
	maxResponseBytes = 10 << 20
)

var (
	// ErrNetwork covers transport failures and non-200 responses.
	ErrNetwork = errors.New("network error")
	// ErrParse covers malformed index responses.
	ErrParse = errors.New("parse error")
)

// Release is one installable runtime version.
type Release struct {
	Tag         string    `json:"tag" yaml:"tag"`
	Name        string    `json:"name" yaml:"name"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	ArchiveURL  string    `json:"archive_url" yaml:"archive_url"`
	ArchiveName string    `json:"archive_name" yaml:"archive_name"`
	Size        int64     `json:"size" yaml:"size"`
}

type (
	githubRelease struct {
		TagName     string        `json:"tag_name"`
		Name        string        `json:"name"`
		PublishedAt string        `json:"published_at"`
		Assets      []githubAsset `json:"assets"`
	}

	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}
)

// Client fetches the release index.
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	userAgent  string
	timeout    time.Duration
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the API root, primarily for test servers.
func WithBaseURL(base string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(base, "/")
	}
}

// WithRepo overrides the repository publishing the builds.
func WithRepo(owner, repo string) Option {
	return func(cl *Client) {
		cl.owner = owner
		cl.repo = repo
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithTimeout overrides the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a client for the GloriousEggroll/proton-ge-custom
// releases unless overridden.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		owner:     "GloriousEggroll",
		repo:      "proton-ge-custom",
		userAgent: "winemgr/1.0",
		timeout:   transport.CatalogTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = transport.CatalogClient()
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// URL returns the release index endpoint.
func (c *Client) URL() string {
	return fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, c.owner, c.repo)
}

// FetchCatalog issues one GET against the release index. Releases without a
// tarball asset are dropped. Failures wrap ErrNetwork or ErrParse; callers
// that accept degraded operation substitute an empty list themselves.
func (c *Client) FetchCatalog(ctx context.Context) ([]Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to fetch releases", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("unexpected status from release index", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrNetwork, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	releases, err := parseReleases(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("failed to parse release index", "err", err)
		return nil, err
	}

	c.logger.Info("fetched releases", "count", len(releases))
	return releases, nil
}

// parseReleases decodes the index and keeps releases carrying a tarball.
func parseReleases(r io.Reader) ([]Release, error) {
	var raw []githubRelease
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode releases: %v", ErrParse, err)
	}

	releases := make([]Release, 0, len(raw))
	for _, rel := range raw {
		asset, ok := archiveAsset(rel.Assets)
		if !ok {
			continue
		}
		published, err := parseTimestamp(rel.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: release %s: %v", ErrParse, rel.TagName, err)
		}
		releases = append(releases, Release{
			Tag:         rel.TagName,
			Name:        rel.Name,
			PublishedAt: published,
			ArchiveURL:  asset.BrowserDownloadURL,
			ArchiveName: asset.Name,
			Size:        asset.Size,
		})
	}
	return releases, nil
}

// archiveAsset returns the first asset ending in ArchiveSuffix.
func archiveAsset(assets []githubAsset) (githubAsset, bool) {
	for _, a := range assets {
		if strings.HasSuffix(a.Name, ArchiveSuffix) {
			return a, true
		}
	}
	return githubAsset{}, false
}

// parseTimestamp accepts ISO-8601 with or without a trailing "Z".
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid published_at %q", s)
	}
	return t.UTC(), nil
}

// Find returns the release with the given tag.
func Find(releases []Release, tag string) (Release, bool) {
	for _, r := range releases {
		if r.Tag == tag {
			return r, true
		}
	}
	return Release{}, false
}
