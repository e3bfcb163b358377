// Package wayback looks up archived homepages in the Internet Archive's CDX
// index. Discovery uses an archived copy when the live homepage returns
// nothing.
package wayback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// DefaultEndpoint is the public Wayback Machine.
const DefaultEndpoint = "https://web.archive.org"

// ErrNoSnapshot reports a URL the archive has never captured.
var ErrNoSnapshot = errors.New("wayback: no snapshot")

// Client queries the CDX server through a crawler.Fetcher.
type Client struct {
	fetcher  crawler.Fetcher
	endpoint string
	backoff  *crawler.Throttle
	logger   *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithPauser replaces the sleeper used for the rate-limit backoff.
func WithPauser(p crawler.Pauser) Option {
	return func(c *Client) { c.backoff = crawler.NewThrottle(time.Second, 2*time.Second, p) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client. An empty endpoint selects DefaultEndpoint.
func New(fetcher crawler.Fetcher, endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		fetcher:  fetcher,
		endpoint: strings.TrimRight(endpoint, "/"),
		backoff:  crawler.NewThrottle(time.Second, 2*time.Second, nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("wayback")
	return c
}

// Newest returns the capture timestamp and original URL of the most recent
// successful snapshot of siteURL.
func (c *Client) Newest(ctx context.Context, siteURL string) (timestamp, original string, err error) {
	params := url.Values{}
	params.Set("url", siteURL)
	params.Set("output", "json")
	params.Set("fl", "timestamp,original")
	params.Set("filter", "statuscode:200")
	params.Set("limit", "-1")

	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{
		Method: http.MethodGet,
		URL:    c.endpoint + "/cdx/search/cdx?" + params.Encode(),
	})
	if err != nil {
		if errors.Is(err, crawler.ErrRateLimited) {
			c.logger.Warn("Rate limited by the archive, backing off", zap.String("url", siteURL))
			if werr := c.backoff.Wait(ctx); werr != nil {
				return "", "", fmt.Errorf("cdx backoff: %w", werr)
			}
		}
		return "", "", fmt.Errorf("cdx lookup %s: %w", siteURL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", "", fmt.Errorf("cdx lookup %s: %w", siteURL, &crawler.HTTPStatusError{URL: siteURL, StatusCode: resp.StatusCode})
	}

	var rows [][]string
	if len(strings.TrimSpace(string(resp.Body))) > 0 {
		if err := json.Unmarshal(resp.Body, &rows); err != nil {
			return "", "", fmt.Errorf("cdx lookup %s: %w: %v", siteURL, crawler.ErrParse, err)
		}
	}
	// The first row is the field header.
	if len(rows) < 2 || len(rows[len(rows)-1]) < 2 {
		return "", "", fmt.Errorf("%w: %s", ErrNoSnapshot, siteURL)
	}
	last := rows[len(rows)-1]
	return last[0], last[1], nil
}

// ArchiveURL is the browsable address of a capture.
func (c *Client) ArchiveURL(timestamp, original string) string {
	return c.endpoint + "/web/" + timestamp + "/" + original
}

// Snapshot downloads the newest capture of siteURL as originally served,
// without the archive's link rewriting. The returned response carries
// siteURL so relative links resolve against the live site.
func (c *Client) Snapshot(ctx context.Context, siteURL string) (crawler.FetchResponse, error) {
	ts, original, err := c.Newest(ctx, siteURL)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	raw := c.endpoint + "/web/" + ts + "id_/" + original
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{Method: http.MethodGet, URL: raw})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch snapshot %s: %w", raw, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return crawler.FetchResponse{}, fmt.Errorf("fetch snapshot %s: %w", raw, &crawler.HTTPStatusError{URL: raw, StatusCode: resp.StatusCode})
	}
	c.logger.Info("Snapshot chosen", zap.String("url", siteURL), zap.String("archive_url", c.ArchiveURL(ts, original)))
	resp.URL = strings.TrimRight(siteURL, "/") + "/"
	return resp, nil
}

// Snapshots returns the archive URL of the newest capture for each URL,
// skipping URLs that fail.
func (c *Client) Snapshots(ctx context.Context, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		ts, original, err := c.Newest(ctx, u)
		if err != nil {
			c.logger.Warn("Wayback lookup failed", zap.String("url", u), zap.Error(err))
			continue
		}
		out = append(out, c.ArchiveURL(ts, original))
	}
	return out
}
