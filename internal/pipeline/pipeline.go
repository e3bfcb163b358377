// Package pipeline chains search, discovery, entry collection, extraction
// and every output step into one batch run.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/export"
	"github.com/JakeFAU/yacht-feed-crawler/internal/extract"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
	"github.com/JakeFAU/yacht-feed-crawler/internal/report"
	"github.com/JakeFAU/yacht-feed-crawler/internal/search"
	"github.com/JakeFAU/yacht-feed-crawler/internal/storage/mirror"
)

// EventRunCompleted is the notification published after a successful run.
const EventRunCompleted = "run.completed"

const (
	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeHTML = "text/html; charset=utf-8"
)

// Searcher proposes candidate domains for the configured queries.
type Searcher interface {
	Run(ctx context.Context, queries []string) ([]string, error)
}

// Discoverer maps domains to confirmed feed URLs.
type Discoverer interface {
	DiscoverFeeds(ctx context.Context, inputs []crawler.DomainInput) *crawler.FeedMap
}

// EntryFetcher gathers entries for every domain of a FeedMap.
type EntryFetcher interface {
	FetchEntries(ctx context.Context, feeds *crawler.FeedMap) *crawler.EntryMap
}

// RecordStore persists the records of a run and reads them back for export.
type RecordStore interface {
	ReplaceRun(ctx context.Context, runID string, records []crawler.Record) error
	ListRun(ctx context.Context, runID string) ([]crawler.Record, error)
}

// Config names the artifacts and run-level knobs.
type Config struct {
	Queries   []string
	Whitelist []string
	Blacklist []string

	FeedsPath   string
	RecordsPath string
	CSVPath     string
	XLSXPath    string
	ReportPath  string

	BreakerThreshold int
	BreakerCooldown  time.Duration

	PushgatewayURL string
	MetricsJob     string
}

// Deps are the collaborators a Runner drives. Searcher, RecordStore,
// Mirror and Publisher are optional.
type Deps struct {
	Searcher    Searcher
	Discoverer  Discoverer
	Entries     EntryFetcher
	Store       crawler.BlobStore
	RecordStore RecordStore
	Mirror      *mirror.Mirror
	Publisher   crawler.Publisher
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
}

// Runner executes pipeline runs.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// Collected is the output of the post-discovery stages.
type Collected struct {
	Entries   *crawler.EntryMap
	Records   []crawler.Record
	Artifacts []mirror.Artifact
	Report    report.Report
}

// New constructs a Runner.
func New(cfg Config, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeedsPath == "" {
		cfg.FeedsPath = "feeds.json"
	}
	if cfg.RecordsPath == "" {
		cfg.RecordsPath = "records.json"
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger.Named("pipeline")}
}

// Run executes one full batch. Only ErrNoFeedsDiscovered, a failed run ID or
// a canceled context fail the run; later steps log and continue.
func (r *Runner) Run(ctx context.Context, inputs []crawler.DomainInput) (crawler.RunSummary, error) {
	started := r.now()
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID))
	summary := crawler.RunSummary{RunID: runID, StartedAt: started}

	ctx = crawler.WithRunState(ctx, crawler.NewRunState(r.cfg.BreakerThreshold, r.cfg.BreakerCooldown, logger))

	inputs = r.resolveInputs(ctx, inputs)
	summary.Domains = len(inputs)

	feeds, feedsArtifact, err := r.discover(ctx, inputs)
	summary.DomainsWithFeeds, summary.Feeds = countFeeds(feeds)
	if err != nil {
		summary.FinishedAt = r.now()
		status := "failed"
		if errors.Is(err, crawler.ErrNoFeedsDiscovered) {
			status = "no_feeds"
		}
		r.finish(ctx, status, summary)
		logger.Error("Run failed", zap.Error(err))
		return summary, err
	}

	out := r.Collect(ctx, runID, feeds)
	out.Artifacts = append([]mirror.Artifact{feedsArtifact}, out.Artifacts...)
	summary.Entries = countEntries(out.Entries)
	summary.Records = len(out.Records)

	uris, err := r.deps.Mirror.Upload(ctx, runID, out.Artifacts)
	if err != nil {
		logger.Warn("Remote sync incomplete", zap.Error(err))
	}
	summary.Artifacts = uris
	summary.FinishedAt = r.now()

	if r.deps.Publisher != nil {
		if _, err := r.deps.Publisher.Publish(ctx, EventRunCompleted, summary); err != nil {
			logger.Warn("Run notification failed", zap.Error(err))
		}
	}
	r.finish(ctx, "success", summary)
	logger.Info("Run finished",
		zap.Int("domains", summary.Domains),
		zap.Int("domains_with_feeds", summary.DomainsWithFeeds),
		zap.Int("feeds", summary.Feeds),
		zap.Int("entries", summary.Entries),
		zap.Int("records", summary.Records),
		zap.Duration("duration", summary.FinishedAt.Sub(started)),
	)
	return summary, ctx.Err()
}

// Discover resolves inputs, discovers feeds and persists the FeedMap. It
// returns ErrNoFeedsDiscovered when no domain yielded a feed.
func (r *Runner) Discover(ctx context.Context, inputs []crawler.DomainInput) (*crawler.FeedMap, error) {
	if crawler.RunStateFrom(ctx) == nil {
		ctx = crawler.WithRunState(ctx, crawler.NewRunState(r.cfg.BreakerThreshold, r.cfg.BreakerCooldown, r.logger))
	}
	feeds, _, err := r.discover(ctx, r.resolveInputs(ctx, inputs))
	return feeds, err
}

func (r *Runner) discover(ctx context.Context, inputs []crawler.DomainInput) (*crawler.FeedMap, mirror.Artifact, error) {
	feeds := r.deps.Discoverer.DiscoverFeeds(ctx, inputs)
	artifact := r.persistJSON(ctx, r.cfg.FeedsPath, feeds)
	if err := ctx.Err(); err != nil {
		return feeds, artifact, err
	}
	if feeds.Len() == 0 {
		return feeds, artifact, crawler.ErrNoFeedsDiscovered
	}
	return feeds, artifact, nil
}

// Collect runs every stage after discovery for feeds: entries, records,
// record store, exports and the data-quality report. Failures are logged and
// skipped.
func (r *Runner) Collect(ctx context.Context, runID string, feeds *crawler.FeedMap) Collected {
	if crawler.RunStateFrom(ctx) == nil {
		ctx = crawler.WithRunState(ctx, crawler.NewRunState(r.cfg.BreakerThreshold, r.cfg.BreakerCooldown, r.logger))
	}
	logger := r.logger.With(zap.String("run_id", runID))
	var out Collected

	out.Entries = r.deps.Entries.FetchEntries(ctx, feeds)
	out.Records = extract.Run(out.Entries)
	if out.Records == nil {
		out.Records = []crawler.Record{}
	}
	out.Artifacts = append(out.Artifacts, r.persistJSON(ctx, r.cfg.RecordsPath, out.Records))

	exportable := out.Records
	if r.deps.RecordStore != nil {
		if err := r.deps.RecordStore.ReplaceRun(ctx, runID, out.Records); err != nil {
			logger.Warn("Record store write failed", zap.Error(err))
		} else if stored, err := r.deps.RecordStore.ListRun(ctx, runID); err != nil {
			logger.Warn("Record store read failed", zap.Error(err))
		} else {
			exportable = stored
		}
	}

	if r.cfg.CSVPath != "" {
		if data, err := export.CSV(exportable); err != nil {
			logger.Warn("CSV export failed", zap.Error(err))
		} else {
			out.Artifacts = append(out.Artifacts, r.persist(ctx, r.cfg.CSVPath, contentTypeCSV, data))
		}
	}
	if r.cfg.XLSXPath != "" {
		if data, err := export.XLSX(exportable); err != nil {
			logger.Warn("XLSX export failed", zap.Error(err))
		} else {
			out.Artifacts = append(out.Artifacts, r.persist(ctx, r.cfg.XLSXPath, contentTypeXLSX, data))
		}
	}

	out.Report = report.Check(runID, exportable, r.now())
	if !out.Report.OK() {
		logger.Warn("Data quality issues", zap.String("summary", out.Report.Summary()))
	}
	if r.cfg.ReportPath != "" {
		if data, err := report.HTML(out.Report); err != nil {
			logger.Warn("Report render failed", zap.Error(err))
		} else {
			out.Artifacts = append(out.Artifacts, r.persist(ctx, r.cfg.ReportPath, contentTypeHTML, data))
		}
	}
	return out
}

func (r *Runner) resolveInputs(ctx context.Context, inputs []crawler.DomainInput) []crawler.DomainInput {
	if len(inputs) == 0 && len(r.cfg.Queries) > 0 && r.deps.Searcher != nil {
		domains, err := r.deps.Searcher.Run(ctx, r.cfg.Queries)
		if err != nil {
			r.logger.Warn("Domain search failed", zap.Error(err))
		}
		inputs = crawler.DomainInputsFromStrings(domains)
	}
	if len(r.cfg.Whitelist) == 0 && len(r.cfg.Blacklist) == 0 {
		return inputs
	}
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		names = append(names, in.Domain)
	}
	kept := make(map[string]struct{}, len(names))
	for _, name := range search.Filter(names, r.cfg.Whitelist, r.cfg.Blacklist) {
		kept[name] = struct{}{}
	}
	filtered := make([]crawler.DomainInput, 0, len(kept))
	for _, in := range inputs {
		if _, ok := kept[in.Domain]; ok {
			filtered = append(filtered, in)
		}
	}
	r.logger.Info("Filtered domains", zap.Int("before", len(inputs)), zap.Int("after", len(filtered)))
	return filtered
}

func (r *Runner) persistJSON(ctx context.Context, path string, v any) mirror.Artifact {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.Warn("Encode artifact failed", zap.String("path", path), zap.Error(err))
		return mirror.Artifact{Path: path, ContentType: contentTypeJSON}
	}
	return r.persist(ctx, path, contentTypeJSON, append(data, '\n'))
}

func (r *Runner) persist(ctx context.Context, path, contentType string, data []byte) mirror.Artifact {
	artifact := mirror.Artifact{Path: path, ContentType: contentType, Data: data}
	if r.deps.Store == nil {
		return artifact
	}
	uri, err := r.deps.Store.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		r.logger.Warn("Persist artifact failed", zap.String("path", path), zap.Error(err))
		return artifact
	}
	r.logger.Info("Persisted artifact", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return artifact
}

func (r *Runner) finish(ctx context.Context, status string, summary crawler.RunSummary) {
	metrics.ObserveRun(status, summary.StartedAt, summary.FinishedAt)
	// The push runs even after cancellation so the failure is still reported.
	pushCtx := context.WithoutCancel(ctx)
	if err := metrics.Push(pushCtx, r.cfg.PushgatewayURL, r.cfg.MetricsJob); err != nil {
		r.logger.Warn("Metrics push failed", zap.Error(err))
	}
}

func (r *Runner) now() time.Time {
	if r.deps.Clock == nil {
		return time.Now().UTC()
	}
	return r.deps.Clock.Now()
}

func countFeeds(feeds *crawler.FeedMap) (domains, total int) {
	if feeds == nil {
		return 0, 0
	}
	feeds.Each(func(_ string, urls []string) {
		if len(urls) > 0 {
			domains++
		}
		total += len(urls)
	})
	return domains, total
}

func countEntries(entries *crawler.EntryMap) int {
	if entries == nil {
		return 0
	}
	n := 0
	entries.Each(func(_ string, list []crawler.FeedEntry) { n += len(list) })
	return n
}
