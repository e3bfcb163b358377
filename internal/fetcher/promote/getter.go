// Package promote retrieves pages with a plain HTTP fetch and escalates to a
// headless browser when the site answers with a bot challenge.
package promote

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
)

// Getter implements crawler.HTMLGetter.
type Getter struct {
	plain    crawler.Fetcher
	browser  crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// New wires a Getter. browser may be a headless.Noop when rendering is off.
func New(plain, browser crawler.Fetcher, detector crawler.HeadlessDetector, logger *zap.Logger) *Getter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Getter{plain: plain, browser: browser, detector: detector, logger: logger.Named("getter")}
}

// GetHTML fetches url. A plain failure or a challenge response is retried in
// the browser and the browser's result replaces the plain one. When no
// usable response exists an empty FetchResponse is returned.
func (g *Getter) GetHTML(ctx context.Context, url string) crawler.FetchResponse {
	req := crawler.FetchRequest{Method: http.MethodGet, URL: url}
	resp, err := g.plain.Fetch(ctx, req)
	switch {
	case err != nil:
		g.logger.Warn("Plain fetch failed; trying browser", zap.String("url", url), zap.Error(err))
	case g.detector == nil || !g.detector.ShouldPromote(resp):
		return resp
	default:
		g.logger.Info("Bot challenge detected; trying browser",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
	}

	if g.browser == nil {
		return fallback(resp, err)
	}
	rendered, berr := g.browser.Fetch(ctx, req)
	switch {
	case errors.Is(berr, crawler.ErrBrowserUnavailable):
		metrics.ObserveBrowserFallback("unavailable")
		return fallback(resp, err)
	case berr != nil:
		metrics.ObserveBrowserFallback("error")
		g.logger.Warn("Browser fetch failed", zap.String("url", url), zap.Error(berr))
		return crawler.FetchResponse{}
	case rendered.Empty():
		metrics.ObserveBrowserFallback("timeout")
		return crawler.FetchResponse{}
	default:
		metrics.ObserveBrowserFallback("rendered")
		g.logger.Info("Browser fetch succeeded",
			zap.String("url", url),
			zap.Int("status", rendered.StatusCode),
			zap.Int("bytes", len(rendered.Body)),
		)
		return rendered
	}
}

// fallback keeps a successful plain response when no browser can help.
func fallback(resp crawler.FetchResponse, err error) crawler.FetchResponse {
	if err != nil {
		return crawler.FetchResponse{}
	}
	return resp
}
