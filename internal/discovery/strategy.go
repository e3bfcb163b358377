package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/links"
)

// Mode selects how a strategy's candidates are confirmed.
type Mode string

const (
	// ModeParse confirms a candidate when it parses into at least one entry.
	ModeParse Mode = "parse"
	// ModeLightweight confirms a candidate on status < 400 and a feed-like
	// content type.
	ModeLightweight Mode = "lightweight"
)

// Page is what strategies mine: the domain and its fetched homepage.
type Page struct {
	Domain   crawler.Domain
	Response crawler.FetchResponse
	HTML     string
}

// Strategy produces feed candidates for a domain.
type Strategy struct {
	Name string
	Mode Mode
	// NeedsHTML skips the strategy when the homepage body is empty.
	NeedsHTML  bool
	Candidates func(ctx context.Context, page Page) []string
}

// DefaultPaths are probed against the domain root.
var DefaultPaths = []string{
	"/feed",
	"/rss",
	"/rss.xml",
	"/atom.xml",
	"/.rss",
	"/feed.xml",
	"/index.xml",
	"/feeds/posts/default",
	"/feed.json",
}

// DefaultExtensions are appended verbatim to the domain root.
var DefaultExtensions = []string{".xml", ".rss"}

// StrategyConfig tunes the built-in strategies.
type StrategyConfig struct {
	DefaultPaths []string
	Extensions   []string
	AnchorTokens []string
}

// LinkTags mines declared <link rel="alternate"> feed tags.
func LinkTags() Strategy {
	return Strategy{
		Name:      "link_tags",
		Mode:      ModeParse,
		NeedsHTML: true,
		Candidates: func(_ context.Context, page Page) []string {
			return links.ExtractFeedLinks(page.HTML, baseFor(page))
		},
	}
}

// PathProbe resolves well-known feed paths against the domain root.
func PathProbe(paths []string) Strategy {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return Strategy{
		Name: "default_paths",
		Mode: ModeLightweight,
		Candidates: func(_ context.Context, page Page) []string {
			out := make([]string, 0, len(paths))
			for _, p := range paths {
				out = append(out, page.Domain.Resolve(p))
			}
			return out
		},
	}
}

// Anchors mines anchors whose href mentions a feed token.
func Anchors(tokens []string) Strategy {
	return Strategy{
		Name:      "anchors",
		Mode:      ModeParse,
		NeedsHTML: true,
		Candidates: func(_ context.Context, page Page) []string {
			return links.ExtractAnchorCandidates(page.HTML, baseFor(page), tokens)
		},
	}
}

// Finder delegates to an opaque feed finder. Its errors only cost the
// candidates it would have produced.
func Finder(finder crawler.FeedFinder, logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Strategy{
		Name:      "feed_finder",
		Mode:      ModeLightweight,
		NeedsHTML: true,
		Candidates: func(ctx context.Context, page Page) []string {
			if finder == nil {
				return nil
			}
			found, err := finder.FindFeeds(ctx, page.Domain.BaseURL, page.Response)
			if err != nil {
				logger.Warn("Feed finder failed", zap.String("domain", page.Domain.Host), zap.Error(err))
				return nil
			}
			return found
		},
	}
}

// ExtensionProbe appends each extension to the bare domain root, so
// "https://example.com" yields "https://example.com.xml".
func ExtensionProbe(exts []string) Strategy {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	return Strategy{
		Name: "extensions",
		Mode: ModeLightweight,
		Candidates: func(_ context.Context, page Page) []string {
			out := make([]string, 0, len(exts))
			for _, ext := range exts {
				out = append(out, page.Domain.BaseURL+ext)
			}
			return out
		},
	}
}

// DefaultStrategies returns the five strategies in priority order.
func DefaultStrategies(cfg StrategyConfig, finder crawler.FeedFinder, logger *zap.Logger) []Strategy {
	return []Strategy{
		LinkTags(),
		PathProbe(cfg.DefaultPaths),
		Anchors(cfg.AnchorTokens),
		Finder(finder, logger),
		ExtensionProbe(cfg.Extensions),
	}
}

func baseFor(page Page) string {
	if page.Response.URL != "" {
		return page.Response.URL
	}
	return page.Domain.BaseURL + "/"
}
