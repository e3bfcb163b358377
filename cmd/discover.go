package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoverCmd(root *rootOptions) *cobra.Command {
	var domainsFile string
	cmd := &cobra.Command{
		Use:   "discover [domain...]",
		Short: "Discovers feeds for the given domains",
		Long: `Runs feed discovery for each domain, writes the feed map to the configured
output store and prints it. With no domains and configured search queries,
candidate domains come from web search. Exits non-zero when no feed is found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			inputs, err := loadInputs(domainsFile, args)
			if err != nil {
				return err
			}
			feeds, err := appInstance.Pipeline().Discover(cmd.Context(), inputs)
			if err != nil {
				return fmt.Errorf("discover feeds: %w", err)
			}
			data, err := json.MarshalIndent(feeds, "", "  ")
			if err != nil {
				return fmt.Errorf("encode feeds: %w", err)
			}
			_, err = fmt.Fprintln(root.out, string(data))
			return err
		},
	}
	cmd.Flags().StringVar(&domainsFile, "domains-file", "", "JSON array of domains or {domain, timestamp} objects")
	return cmd
}
