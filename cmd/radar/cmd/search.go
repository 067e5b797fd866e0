package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/civicwatch/radar/internal/radar"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search the indexed corpus by meaning.

The query is embedded and matched against indexed content by cosine
similarity. When the embedding backend is unavailable, search falls back
to keyword matching.

Examples:
  radar search "toll increases"
  radar search "public hearing schedule" -n 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := radar.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	results, err := engine.Search(cmd.Context(), query, opts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. [%s] %.3f %s\n", i+1, r.Metadata.SourceID, r.Score, r.Metadata.Excerpt)
		if len(r.Metadata.Tags) > 0 {
			fmt.Fprintf(out, "   tags: %s\n", strings.Join(r.Metadata.Tags, ", "))
		}
	}
	return nil
}
