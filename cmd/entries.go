package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/id/uuid"
)

func newEntriesCmd(root *rootOptions) *cobra.Command {
	var feedsFile string
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Collects entries and records from a saved feed map",
		Long: `Reads a feed map written by discover, fetches up to the configured number of
entries per domain, extracts records and writes every output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if feedsFile == "" {
				feedsFile = filepath.Join(cfg.Output.Dir, cfg.Output.FeedsFile)
			}
			data, err := os.ReadFile(feedsFile)
			if err != nil {
				return fmt.Errorf("read feeds file: %w", err)
			}
			feeds := crawler.NewDomainMap[[]string]()
			if err := json.Unmarshal(data, feeds); err != nil {
				return fmt.Errorf("decode feeds file: %w", err)
			}
			runID, err := uuid.NewPrefixed("entries").NewID()
			if err != nil {
				return err
			}
			out := appInstance.Pipeline().Collect(cmd.Context(), runID, feeds)
			appInstance.Logger().Info("Entries collected",
				zap.String("run_id", runID),
				zap.Int("domains", feeds.Len()),
				zap.Int("records", len(out.Records)),
			)
			_, err = fmt.Fprintf(root.out, "%d record(s) from %d domain(s)\n", len(out.Records), feeds.Len())
			return err
		},
	}
	cmd.Flags().StringVar(&feedsFile, "feeds-file", "", "feed map JSON (default <output.dir>/<output.feeds_file>)")
	return cmd
}
