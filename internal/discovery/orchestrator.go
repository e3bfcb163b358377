// Package discovery locates syndication feeds for a list of domains. Each
// domain runs an ordered list of strategies and stops at the first one that
// yields a confirmed feed.
package discovery

import (
	"bytes"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/links"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
)

// Result describes the outcome for one domain.
type Result struct {
	Domain   crawler.Domain
	Feeds    []string
	Strategy string
	Homepage crawler.FetchResponse
	// DiagnosticsURI is set when the homepage was saved for inspection.
	DiagnosticsURI string
}

// Archive supplies a stored copy of a homepage.
type Archive interface {
	Snapshot(ctx context.Context, siteURL string) (crawler.FetchResponse, error)
}

// Orchestrator runs discovery strategies domain by domain.
type Orchestrator struct {
	getter      crawler.HTMLGetter
	archive     Archive
	validator   Validator
	strategies  []Strategy
	diagnostics crawler.BlobStore
	hasher      crawler.Hasher
	logger      *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithDiagnostics stores raw homepages of domains without feeds.
func WithDiagnostics(store crawler.BlobStore) Option {
	return func(o *Orchestrator) { o.diagnostics = store }
}

// WithArchive mines an archived homepage when the live one comes back empty.
func WithArchive(a Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithHasher fingerprints saved homepages in the diagnostic log line.
func WithHasher(h crawler.Hasher) Option {
	return func(o *Orchestrator) { o.hasher = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New builds an Orchestrator that tries strategies in the given order.
func New(getter crawler.HTMLGetter, validator Validator, strategies []Strategy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		getter:     getter,
		validator:  validator,
		strategies: strategies,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("discovery")
	return o
}

// DiscoverFeeds processes inputs sequentially and returns confirmed feeds
// keyed by host, in input order. Invalid inputs are logged and skipped; a
// domain without feeds is absent from the result.
func (o *Orchestrator) DiscoverFeeds(ctx context.Context, inputs []crawler.DomainInput) *crawler.FeedMap {
	feeds := crawler.NewDomainMap[[]string]()
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if ctx.Err() != nil {
			o.logger.Warn("Discovery interrupted", zap.Error(ctx.Err()))
			break
		}
		domain, err := crawler.NormalizeDomain(in.Domain)
		if err != nil {
			o.logger.Warn("Skipping domain", zap.String("input", in.Domain), zap.Error(err))
			metrics.ObserveDomain("invalid")
			continue
		}
		if _, dup := seen[domain.Host]; dup {
			o.logger.Debug("Duplicate domain", zap.String("domain", domain.Host))
			continue
		}
		seen[domain.Host] = struct{}{}

		res := o.DiscoverDomain(ctx, domain)
		if len(res.Feeds) > 0 {
			feeds.Set(domain.Host, res.Feeds)
		}
	}
	return feeds
}

// DiscoverDomain fetches the homepage and walks the strategies until one
// produces confirmed feeds.
func (o *Orchestrator) DiscoverDomain(ctx context.Context, domain crawler.Domain) Result {
	logger := o.logger.With(zap.String("domain", domain.Host))
	resp := o.getter.GetHTML(ctx, domain.BaseURL)
	if len(resp.Body) == 0 && o.archive != nil {
		archived, err := o.archive.Snapshot(ctx, domain.BaseURL)
		switch {
		case err != nil:
			logger.Debug("No archived homepage", zap.Error(err))
		case len(archived.Body) > 0:
			logger.Info("Using archived homepage")
			resp = archived
		}
	}
	page := Page{
		Domain:   domain,
		Response: resp,
		HTML:     links.Decode(resp.Body, resp.ContentType),
	}
	res := Result{Domain: domain, Homepage: resp}
	hasHTML := strings.TrimSpace(page.HTML) != ""

	for _, s := range o.strategies {
		if ctx.Err() != nil {
			return res
		}
		if s.NeedsHTML && !hasHTML {
			logger.Debug("Strategy skipped without HTML", zap.String("strategy", s.Name))
			continue
		}
		confirmed := o.confirm(ctx, s, s.Candidates(ctx, page))
		if len(confirmed) == 0 {
			continue
		}
		res.Feeds = confirmed
		res.Strategy = s.Name
		metrics.ObserveFeedsConfirmed(s.Name, len(confirmed))
		metrics.ObserveDomain("feeds")
		logger.Info("Feeds confirmed",
			zap.String("strategy", s.Name),
			zap.Strings("feeds", confirmed),
		)
		return res
	}
	if ctx.Err() != nil {
		return res
	}

	metrics.ObserveDomain("no_feeds")
	res.DiagnosticsURI = o.recordMiss(ctx, page, logger)
	return res
}

func (o *Orchestrator) confirm(ctx context.Context, s Strategy, candidates []string) []string {
	tried := make(map[string]struct{}, len(candidates))
	valid := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := tried[candidate]; ok {
			continue
		}
		tried[candidate] = struct{}{}
		if ctx.Err() != nil {
			break
		}
		if o.validator.Validate(ctx, s.Mode, candidate) {
			valid = append(valid, candidate)
		}
	}
	return crawler.DedupeFeedURLs(valid)
}

func (o *Orchestrator) recordMiss(ctx context.Context, page Page, logger *zap.Logger) string {
	body := page.Response.Body
	fields := []zap.Field{
		zap.Int("status", page.Response.StatusCode),
		zap.String("content_type", page.Response.ContentType),
		zap.Int("link_tags", links.CountLinkTags(page.HTML)),
		zap.Int("anchors", links.CountAnchors(page.HTML)),
		zap.Int("bytes", len(body)),
	}
	if len(body) == 0 || o.diagnostics == nil {
		logger.Warn("No feeds discovered", fields...)
		return ""
	}
	if o.hasher != nil {
		if sum, err := o.hasher.Hash(body); err == nil {
			fields = append(fields, zap.String("sha256", sum))
		}
	}
	uri, err := o.diagnostics.PutObject(ctx, crawler.DiagnosticsKey(page.Domain.Host), "text/html", bytes.NewReader(body))
	if err != nil {
		logger.Warn("No feeds discovered", append(fields, zap.NamedError("diagnostics_error", err))...)
		return ""
	}
	logger.Warn("No feeds discovered", append(fields, zap.String("diagnostics", uri))...)
	return uri
}
