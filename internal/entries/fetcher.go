// Package entries collects feed entries for every domain with confirmed feeds.
package entries

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
)

// DefaultLimit is the per-domain entry cap.
const DefaultLimit = 20

// Fetcher gathers up to limit entries per domain.
type Fetcher struct {
	parser  crawler.FeedParser
	limit   int
	shuffle func([]string)
	logger  *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithShuffle replaces the feed-order shuffler.
func WithShuffle(fn func([]string)) Option {
	return func(f *Fetcher) { f.shuffle = fn }
}

// New builds a Fetcher. A non-positive limit selects DefaultLimit.
func New(parser crawler.FeedParser, limit int, logger *zap.Logger, opts ...Option) *Fetcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		parser: parser,
		limit:  limit,
		shuffle: func(urls []string) {
			rand.Shuffle(len(urls), func(i, j int) { urls[i], urls[j] = urls[j], urls[i] })
		},
		logger: logger.Named("entries"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchEntries parses each domain's feeds in random order until the limit is
// reached. Every domain of feeds appears in the result, possibly with an
// empty list; a feed that fails to parse is logged and skipped. The input
// map is not modified.
func (f *Fetcher) FetchEntries(ctx context.Context, feeds *crawler.FeedMap) *crawler.EntryMap {
	out := crawler.NewDomainMap[[]crawler.FeedEntry]()
	feeds.Each(func(domain string, urls []string) {
		collected := make([]crawler.FeedEntry, 0)
		if ctx.Err() == nil {
			collected = f.collect(ctx, domain, urls)
		}
		f.logger.Info("Collected entries",
			zap.String("domain", domain),
			zap.Int("feeds", len(urls)),
			zap.Int("entries", len(collected)),
		)
		metrics.ObserveEntries(len(collected))
		out.Set(domain, collected)
	})
	return out
}

func (f *Fetcher) collect(ctx context.Context, domain string, urls []string) []crawler.FeedEntry {
	order := append([]string(nil), urls...)
	f.shuffle(order)

	collected := make([]crawler.FeedEntry, 0, f.limit)
	for _, url := range order {
		if ctx.Err() != nil {
			break
		}
		items, err := f.parser.ParseURL(ctx, url)
		if err != nil {
			f.logger.Warn("Feed parse failed",
				zap.String("domain", domain),
				zap.String("url", url),
				zap.Error(err),
			)
			continue
		}
		remaining := f.limit - len(collected)
		if len(items) > remaining {
			items = items[:remaining]
		}
		collected = append(collected, items...)
		if len(collected) >= f.limit {
			break
		}
	}
	return collected
}
