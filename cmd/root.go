// Package cmd defines the CLI commands for the yachtfeeds executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/app"
	"github.com/JakeFAU/yacht-feed-crawler/internal/config"
	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/logging"
	"github.com/JakeFAU/yacht-feed-crawler/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner is the slice of the pipeline the commands drive.
type Runner interface {
	Run(ctx context.Context, inputs []crawler.DomainInput) (crawler.RunSummary, error)
	Discover(ctx context.Context, inputs []crawler.DomainInput) (*crawler.FeedMap, error)
	Collect(ctx context.Context, runID string, feeds *crawler.FeedMap) pipeline.Collected
}

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Pipeline() Runner
}

type builtApp struct {
	*app.App
}

func (b builtApp) Pipeline() Runner { return b.Runner() }

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return builtApp{a}, nil
}

type rootOptions struct {
	cfgFile string
	out     io.Writer
	app     App
}

// closeApp shuts the app down once. PersistentPostRun is skipped when a
// command fails, so execute calls it again afterwards.
func (o *rootOptions) closeApp() {
	if o.app == nil {
		return
	}
	o.app.Close()
	_ = o.app.Logger().Sync()
	o.app = nil
}

// newRootCmd creates and configures the root command.
func newRootCmd(opts *rootOptions) *cobra.Command {
	out := opts.out
	cmd := &cobra.Command{
		Use:   "yachtfeeds",
		Short: "Discovers yacht news feeds and extracts yacht records.",
		Long: `yachtfeeds finds RSS/Atom feeds on yacht-related domains, collects their
entries and extracts yacht names and lengths into JSON, CSV and XLSX outputs.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), opts.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			opts.closeApp()
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newDiscoverCmd(opts))
	cmd.AddCommand(newEntriesCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Stdout, os.Args[1:]); err != nil {
		if errors.Is(err, crawler.ErrNoFeedsDiscovered) {
			fmt.Fprintln(os.Stderr, "no feeds discovered")
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, out io.Writer, args []string) error {
	opts := &rootOptions{out: out}
	defer opts.closeApp()
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
