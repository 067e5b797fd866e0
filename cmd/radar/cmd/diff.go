package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicwatch/radar/internal/diff"
	"github.com/civicwatch/radar/internal/radar"
)

// diffOptions holds CLI flags for diff.
type diffOptions struct {
	source string
	format string
}

func newDiffCmd() *cobra.Command {
	var opts diffOptions

	cmd := &cobra.Command{
		Use:   "diff [old-file new-file]",
		Short: "Sentence-level semantic diff between two texts",
		Long: `Compare two texts sentence by sentence, classifying each as added,
deleted, modified, or unchanged.

With two file arguments the files are compared directly. With --source, the
two most recent archived snapshots of that source are compared instead.

Examples:
  radar diff old-notice.txt new-notice.txt
  radar diff --source city-council
  radar diff --source dot --format json`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Diff the two latest snapshots of this source")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runDiff(cmd *cobra.Command, args []string, opts diffOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := radar.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	var result *diff.Result
	switch {
	case opts.source != "":
		result, err = engine.DiffLatest(cmd.Context(), opts.source)
	case len(args) == 2:
		var oldText, newText []byte
		if oldText, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		if newText, err = os.ReadFile(args[1]); err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		result, err = engine.Diff(cmd.Context(), string(oldText), string(newText))
	default:
		return fmt.Errorf("provide two files or --source <id>")
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printDiff(out, result)
	return nil
}
