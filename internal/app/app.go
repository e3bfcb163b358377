// Package app wires configuration into a ready-to-run pipeline.
package app

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/clock/system"
	"github.com/JakeFAU/yacht-feed-crawler/internal/config"
	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/discovery"
	"github.com/JakeFAU/yacht-feed-crawler/internal/entries"
	"github.com/JakeFAU/yacht-feed-crawler/internal/feedfinder"
	collyfetcher "github.com/JakeFAU/yacht-feed-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/yacht-feed-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/yacht-feed-crawler/internal/fetcher/promote"
	"github.com/JakeFAU/yacht-feed-crawler/internal/hash/sha256"
	"github.com/JakeFAU/yacht-feed-crawler/internal/headless/detector"
	"github.com/JakeFAU/yacht-feed-crawler/internal/id/uuid"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
	"github.com/JakeFAU/yacht-feed-crawler/internal/pipeline"
	memorypublisher "github.com/JakeFAU/yacht-feed-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/yacht-feed-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/yacht-feed-crawler/internal/search"
	gcsstorage "github.com/JakeFAU/yacht-feed-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/yacht-feed-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/yacht-feed-crawler/internal/storage/memory"
	"github.com/JakeFAU/yacht-feed-crawler/internal/storage/mirror"
	pgstore "github.com/JakeFAU/yacht-feed-crawler/internal/storage/postgres"
	"github.com/JakeFAU/yacht-feed-crawler/internal/wayback"
)

// App holds the built pipeline and the clients that need closing.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	runner   *pipeline.Runner
	store    crawler.BlobStore
	throttle *crawler.Throttle

	gcsClient       *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	recordStore     *pgstore.RecordStore
	browser         *headlessfetcher.Fetcher
}

// Build creates every collaborator described by cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building pipeline dependencies")

	store, err := app.setupStorage(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.store = store

	remote, err := app.setupSync(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	if err := app.setupDatabase(ctx); err != nil {
		app.Close()
		return nil, err
	}

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.throttle = crawler.NewThrottle(cfg.Throttle.Base(), cfg.Throttle.Jitter(), crawler.TimerPauser{})
	plain := app.setupFetcher()
	getter := app.setupGetter(plain)
	parser := entries.NewParser(plain)
	strategies := app.setupStrategies(plain)
	validator := discovery.NewFeedValidator(plain, parser, cfg.Discovery.ValidationCacheTTL(), logger)
	discoveryOpts := []discovery.Option{
		discovery.WithDiagnostics(store),
		discovery.WithHasher(sha256.New()),
		discovery.WithLogger(logger),
	}
	if cfg.Discovery.WaybackFallback {
		discoveryOpts = append(discoveryOpts, discovery.WithArchive(
			wayback.New(plain, cfg.Discovery.WaybackEndpoint, wayback.WithLogger(logger))))
	}
	orchestrator := discovery.New(getter, validator, strategies, discoveryOpts...)

	deps := pipeline.Deps{
		Discoverer: orchestrator,
		Entries:    entries.New(parser, cfg.Entries.Limit, logger),
		Store:      store,
		Mirror:     mirror.New(remote, cfg.Storage.Prefix, logger),
		Publisher:  publisher,
		Clock:      system.New(),
		IDs:        uuid.NewPrefixed("run"),
	}
	if remote == nil {
		deps.Mirror = nil
	}
	if app.recordStore != nil {
		deps.RecordStore = app.recordStore
	}
	if len(cfg.Search.Queries) > 0 {
		deps.Searcher = search.New(plain, search.Config{
			APIKey:      cfg.Search.APIKey,
			CX:          cfg.Search.CX,
			Endpoint:    cfg.Search.Endpoint,
			ResultCount: cfg.Search.ResultCount,
		}, logger)
	}

	app.runner = pipeline.New(pipeline.Config{
		Queries:          cfg.Search.Queries,
		Whitelist:        cfg.Search.Whitelist,
		Blacklist:        cfg.Search.Blacklist,
		FeedsPath:        cfg.Output.FeedsFile,
		RecordsPath:      cfg.Output.RecordsFile,
		CSVPath:          cfg.Output.CSVFile,
		XLSXPath:         cfg.Output.XLSXFile,
		ReportPath:       cfg.Output.ReportFile,
		BreakerThreshold: cfg.HTTP.BreakerThreshold,
		BreakerCooldown:  cfg.HTTP.BreakerCooldown(),
		PushgatewayURL:   cfg.Metrics.PushgatewayURL,
		MetricsJob:       cfg.Metrics.Job,
	}, deps, logger)
	return app, nil
}

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Store returns the artifact store.
func (a *App) Store() crawler.BlobStore { return a.store }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Close releases every client. It is safe to call on a partially built App.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.recordStore != nil {
		a.recordStore.Close()
	}
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return a.gcsStore(ctx)
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Output.Dir))
		return store, nil
	default:
		a.logger.Info("using in-memory artifact store")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupSync(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.SyncProvider {
	case "gcs":
		a.logger.Info("mirroring artifacts to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return a.gcsStore(ctx)
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) gcsStore(ctx context.Context) (crawler.BlobStore, error) {
	if a.gcsClient == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
	}
	store, err := gcsstorage.New(a.gcsClient, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
	if err != nil {
		return nil, fmt.Errorf("gcs blob store init failed: %w", err)
	}
	return store, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.Provider != "postgres" {
		a.logger.Info("record store disabled")
		return nil
	}
	rs, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.recordStore = rs
	if err := rs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("record store schema failed: %w", err)
	}
	a.logger.Info("record store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = client.Publisher(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.pubsubPublisher), nil
}

func (a *App) setupFetcher() *collyfetcher.Fetcher {
	httpCfg := a.cfg.HTTP
	policy := crawler.NewExponentialRetryPolicy(crawler.RetryConfig{
		MaxAttempts: httpCfg.MaxAttempts,
		BaseDelay:   httpCfg.BackoffInitial(),
		MaxDelay:    httpCfg.BackoffMax(),
	})
	a.logger.Info("using colly fetcher",
		zap.Int("max_attempts", policy.MaxAttempts()),
		zap.Duration("timeout", httpCfg.Timeout()),
		zap.Bool("respect_robots", httpCfg.RespectRobots),
	)
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     httpCfg.UserAgent,
		RespectRobots: httpCfg.RespectRobots,
		Timeout:       httpCfg.Timeout(),
		MaxRetryWait:  httpCfg.BackoffMax(),
	},
		collyfetcher.WithRetryPolicy(policy),
		collyfetcher.WithThrottle(a.throttle),
		collyfetcher.WithLogger(a.logger),
	)
}

func (a *App) setupGetter(plain crawler.Fetcher) *promote.Getter {
	var browser crawler.Fetcher = headlessfetcher.NewNoop()
	if a.cfg.Headless.Enabled {
		b, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.HTTP.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavTimeout(),
			ProxyServer:       a.cfg.Headless.ProxyServer,
			DomainQPS:         a.cfg.Headless.DomainQPS,
			Throttle:          a.throttle,
		}, a.logger)
		if err != nil {
			a.logger.Warn("headless fetcher init failed, continuing without browser", zap.Error(err))
		} else {
			a.browser = b
			browser = b
			a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}
	return promote.New(plain, browser, a.setupDetector(), a.logger)
}

func (a *App) setupDetector() crawler.HeadlessDetector {
	var detect crawler.HeadlessDetector = detector.NewChallenge(a.cfg.Detector.ChallengeStatuses, a.cfg.Detector.Markers)
	if a.cfg.Detector.ScriptShell {
		detect = detector.Any{detect, detector.NewScriptShell(a.cfg.Detector.ScriptShellMaxLength)}
	}
	return detect
}

func (a *App) setupStrategies(plain crawler.Fetcher) []discovery.Strategy {
	var finder crawler.FeedFinder = feedfinder.Noop{}
	if a.cfg.Discovery.FeedFinder == "heuristic" {
		finder = feedfinder.New(plain, a.cfg.Discovery.FinderMaxChecks, a.logger)
	}
	return discovery.DefaultStrategies(discovery.StrategyConfig{
		DefaultPaths: a.cfg.Discovery.DefaultPaths,
		Extensions:   a.cfg.Discovery.ExtensionProbes,
		AnchorTokens: a.cfg.Discovery.AnchorTokens,
	}, finder, a.logger)
}
