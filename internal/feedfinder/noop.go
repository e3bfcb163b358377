package feedfinder

import (
	"context"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Noop finds nothing. It stands in when the heuristic finder is disabled.
type Noop struct{}

// FindFeeds returns no candidates.
func (Noop) FindFeeds(context.Context, string, crawler.FetchResponse) ([]string, error) {
	return nil, nil
}
