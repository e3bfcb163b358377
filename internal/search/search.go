// Package search finds candidate yacht sites through the Google Custom
// Search JSON API and reduces result links to registrable domains.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// DefaultEndpoint is the Custom Search JSON API.
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// ErrMissingCredentials reports an unset API key or engine id.
var ErrMissingCredentials = errors.New("search: missing custom search credentials")

// Config holds API credentials and paging.
type Config struct {
	APIKey      string
	CX          string
	Endpoint    string
	ResultCount int
}

// Client queries Custom Search through a crawler.Fetcher so searches share
// the crawl's throttling and retry behavior.
type Client struct {
	fetcher crawler.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Client.
func New(fetcher crawler.Fetcher, cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ResultCount <= 0 {
		cfg.ResultCount = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: fetcher, cfg: cfg, logger: logger.Named("search")}
}

type response struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

// Search runs one query and returns unique registrable domains in result
// order.
func (c *Client) Search(ctx context.Context, query string, num int) ([]string, error) {
	if c.cfg.APIKey == "" || c.cfg.CX == "" {
		return nil, ErrMissingCredentials
	}
	if num <= 0 {
		num = c.cfg.ResultCount
	}
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.CX)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{
		Method: http.MethodGet,
		URL:    c.cfg.Endpoint + "?" + params.Encode(),
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("search %q: %w", query, &crawler.HTTPStatusError{URL: c.cfg.Endpoint, StatusCode: resp.StatusCode})
	}
	var payload response
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("search %q: %w: %v", query, crawler.ErrParse, err)
	}

	domains := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		if d := RegistrableDomain(item.Link); d != "" {
			domains = append(domains, d)
		}
	}
	return dedupe(domains), nil
}

// Run searches every query, logging and skipping failed ones, and returns
// the deduplicated union in first-seen order.
func (c *Client) Run(ctx context.Context, queries []string) ([]string, error) {
	if c.cfg.APIKey == "" || c.cfg.CX == "" {
		return nil, ErrMissingCredentials
	}
	var all []string
	for _, q := range queries {
		if ctx.Err() != nil {
			return dedupe(all), fmt.Errorf("search interrupted: %w", ctx.Err())
		}
		found, err := c.Search(ctx, q, c.cfg.ResultCount)
		if err != nil {
			c.logger.Warn("Search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		c.logger.Info("Search complete", zap.String("query", q), zap.Int("domains", len(found)))
		all = append(all, found...)
	}
	return dedupe(all), nil
}

// RegistrableDomain returns the eTLD+1 of rawURL, or the bare host when the
// public suffix list has no answer (e.g. "localhost").
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// Filter keeps domains present in whitelist (when non-empty) and absent
// from blacklist. Comparison is case-insensitive.
func Filter(domains, whitelist, blacklist []string) []string {
	allow := toSet(whitelist)
	deny := toSet(blacklist)
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(allow) > 0 {
			if _, ok := allow[key]; !ok {
				continue
			}
		}
		if _, ok := deny[key]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
