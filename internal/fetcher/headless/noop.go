package headless

import (
	"context"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Noop implements Fetcher but always reports that no browser is available.
// It is selected when headless fetching is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns crawler.ErrBrowserUnavailable.
func (Noop) Fetch(_ context.Context, _ crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, crawler.ErrBrowserUnavailable
}
