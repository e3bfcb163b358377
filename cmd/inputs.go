package cmd

import (
	"fmt"
	"os"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// loadInputs reads domains from a JSON file when path is set, otherwise
// from positional args.
func loadInputs(path string, args []string) ([]crawler.DomainInput, error) {
	if path == "" {
		return crawler.DomainInputsFromStrings(args), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open domains file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	inputs, err := crawler.LoadDomainInputs(f)
	if err != nil {
		return nil, err
	}
	return append(inputs, crawler.DomainInputsFromStrings(args)...), nil
}
