package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var domainsFile string
	cmd := &cobra.Command{
		Use:   "run [domain...]",
		Short: "Runs the full pipeline",
		Long: `Discovers feeds, collects entries, extracts records and writes every output,
then mirrors artifacts and announces the run when configured. Prints the run
summary as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			inputs, err := loadInputs(domainsFile, args)
			if err != nil {
				return err
			}
			summary, err := appInstance.Pipeline().Run(cmd.Context(), inputs)
			if err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}
			data, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			_, err = fmt.Fprintln(root.out, string(data))
			return err
		},
	}
	cmd.Flags().StringVar(&domainsFile, "domains-file", "", "JSON array of domains or {domain, timestamp} objects")
	return cmd
}
