package discovery

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// Validator confirms feed candidates.
type Validator interface {
	Validate(ctx context.Context, mode Mode, url string) bool
}

// FeedValidator checks candidates over HTTP and memoizes verdicts so a URL
// offered by several strategies is fetched once per mode.
type FeedValidator struct {
	fetcher crawler.Fetcher
	parser  crawler.FeedParser
	memo    *cache.Cache
	logger  *zap.Logger
}

// NewFeedValidator builds a FeedValidator. A non-positive ttl keeps
// verdicts for ten minutes.
func NewFeedValidator(fetcher crawler.Fetcher, parser crawler.FeedParser, ttl time.Duration, logger *zap.Logger) *FeedValidator {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedValidator{
		fetcher: fetcher,
		parser:  parser,
		memo:    cache.New(ttl, 2*ttl),
		logger:  logger.Named("validator"),
	}
}

// Validate reports whether url is a working feed under mode.
func (v *FeedValidator) Validate(ctx context.Context, mode Mode, url string) bool {
	key := string(mode) + "|" + url
	if cached, ok := v.memo.Get(key); ok {
		return cached.(bool)
	}
	var ok bool
	switch mode {
	case ModeParse:
		ok = v.parses(ctx, url)
	default:
		ok = v.looksLikeFeed(ctx, url)
	}
	if ctx.Err() == nil {
		v.memo.SetDefault(key, ok)
	}
	return ok
}

func (v *FeedValidator) parses(ctx context.Context, url string) bool {
	items, err := v.parser.ParseURL(ctx, url)
	if err != nil {
		v.logger.Debug("Candidate failed to parse", zap.String("url", url), zap.Error(err))
		return false
	}
	return len(items) > 0
}

func (v *FeedValidator) looksLikeFeed(ctx context.Context, url string) bool {
	resp, err := v.fetcher.Fetch(ctx, crawler.FetchRequest{Method: http.MethodGet, URL: url})
	if err != nil {
		v.logger.Debug("Candidate fetch failed", zap.String("url", url), zap.Error(err))
		return false
	}
	ok := resp.StatusCode > 0 && resp.StatusCode < http.StatusBadRequest && crawler.IsFeedContentType(resp.ContentType)
	if !ok {
		v.logger.Debug("Candidate rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.String("content_type", resp.ContentType),
		)
	}
	return ok
}
