package entries

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Parser fetches feed documents through the resilient client and parses
// them with gofeed.
type Parser struct {
	fetcher crawler.Fetcher
}

// NewParser returns a Parser that downloads through fetcher.
func NewParser(fetcher crawler.Fetcher) *Parser {
	return &Parser{fetcher: fetcher}
}

// ParseURL fetches url and returns its entries. Transport failures wrap
// crawler.ErrNetwork; undecodable documents wrap crawler.ErrParse.
func (p *Parser) ParseURL(ctx context.Context, url string) ([]crawler.FeedEntry, error) {
	resp, err := p.fetcher.Fetch(ctx, crawler.FetchRequest{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch feed: %w", &crawler.HTTPStatusError{URL: url, StatusCode: resp.StatusCode})
	}
	return ParseBytes(resp.Body)
}

// ParseBytes parses a feed document held in memory.
func ParseBytes(body []byte) ([]crawler.FeedEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty document", crawler.ErrParse)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrParse, err)
	}
	out := make([]crawler.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := toEntry(item)
		if entry.Title == "" && entry.Summary == "" {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// IsFeed reports whether body sniffs as an RSS, Atom or JSON feed.
func IsFeed(body []byte) bool {
	return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
}

func toEntry(item *gofeed.Item) crawler.FeedEntry {
	summary := strings.TrimSpace(item.Description)
	if summary == "" {
		summary = strings.TrimSpace(item.Content)
	}
	published := item.Published
	parsed := item.PublishedParsed
	if published == "" {
		published = item.Updated
		parsed = item.UpdatedParsed
	}
	return crawler.FeedEntry{
		Title:       strings.TrimSpace(item.Title),
		Summary:     summary,
		Link:        strings.TrimSpace(item.Link),
		Published:   published,
		PublishedAt: parsed,
	}
}
