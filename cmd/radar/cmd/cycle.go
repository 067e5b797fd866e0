package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicwatch/radar/internal/diff"
	"github.com/civicwatch/radar/internal/radar"
)

// cycleOptions holds CLI flags for cycle.
type cycleOptions struct {
	tags   []string
	format string
	batch  string
}

func newCycleCmd() *cobra.Command {
	var opts cycleOptions

	cmd := &cobra.Command{
		Use:   "cycle <source-id> [file]",
		Short: "Process fetched documents through the engine",
		Long: `Run one processing cycle for a source: fingerprint the content, skip it
if unchanged, otherwise diff it against the previous snapshot, embed it, and
index it.

Content is read from the given file, or from stdin when no file is given.
With --batch, a JSON Lines file of observations is processed instead, one
object per line: {"source_id": "...", "text": "...", "tags": ["..."]}.

Examples:
  radar cycle city-council meeting-notice.txt
  curl -s https://example.gov/notices | radar cycle example-gov
  radar cycle dot roadwork.txt --tag transport --format json
  radar cycle --batch fetched.jsonl`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.batch != "" {
				if len(args) > 0 {
					return fmt.Errorf("--batch cannot be combined with positional arguments")
				}
				return runCycleBatch(cmd, opts)
			}
			if len(args) == 0 {
				return fmt.Errorf("provide a source ID or --batch <file>")
			}
			text, err := readContent(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runCycle(cmd, args[0], text, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag to attach to the indexed entry (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.batch, "batch", "", "Process a JSON Lines file of observations")

	return cmd
}

func readContent(stdin io.Reader, args []string) (string, error) {
	if len(args) > 1 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func runCycle(cmd *cobra.Command, sourceID, text string, opts cycleOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := radar.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	results, err := engine.ProcessBatch(cmd.Context(), []radar.Observation{{
		SourceID:   sourceID,
		Text:       text,
		Tags:       opts.tags,
		ObservedAt: time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	result := results[0]
	if result.Err != nil {
		return result.Err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	switch result.Outcome {
	case radar.OutcomeUnchanged:
		fmt.Fprintf(out, "%s: unchanged (hash %s)\n", sourceID, result.Hash[:12])
	case radar.OutcomeIndexed:
		fmt.Fprintf(out, "%s: indexed as %s\n", sourceID, result.DocID[:12])
		if result.Diff != nil {
			printDiff(out, result.Diff)
		}
	}
	return nil
}

// batchItem is one line of a --batch JSONL file.
type batchItem struct {
	SourceID   string    `json:"source_id"`
	Text       string    `json:"text"`
	Tags       []string  `json:"tags,omitempty"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

func runCycleBatch(cmd *cobra.Command, opts cycleOptions) error {
	f, err := os.Open(opts.batch)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", opts.batch, err)
	}
	defer func() { _ = f.Close() }()

	var observations []radar.Observation
	dec := json.NewDecoder(f)
	for line := 1; ; line++ {
		var item batchItem
		if err := dec.Decode(&item); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to parse %s record %d: %w", opts.batch, line, err)
		}
		if item.ObservedAt.IsZero() {
			item.ObservedAt = time.Now().UTC()
		}
		observations = append(observations, radar.Observation{
			SourceID:   item.SourceID,
			Text:       item.Text,
			Tags:       append(item.Tags, opts.tags...),
			ObservedAt: item.ObservedAt,
		})
	}
	if len(observations) == 0 {
		return fmt.Errorf("%s contains no observations", opts.batch)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := radar.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	results, err := engine.ProcessBatch(cmd.Context(), observations)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		type resultView struct {
			SourceID string       `json:"source_id"`
			Outcome  radar.Outcome `json:"outcome"`
			DocID    string       `json:"doc_id,omitempty"`
			Hash     string       `json:"hash,omitempty"`
			Diff     *diff.Result `json:"diff,omitempty"`
			Error    string       `json:"error,omitempty"`
		}
		views := make([]resultView, 0, len(results))
		for _, r := range results {
			v := resultView{
				SourceID: r.SourceID,
				Outcome:  r.Outcome,
				DocID:    r.DocID,
				Hash:     r.Hash,
				Diff:     r.Diff,
			}
			if r.Err != nil {
				v.Error = r.Err.Error()
			}
			views = append(views, v)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "%s: failed: %v\n", r.SourceID, r.Err)
		case r.Outcome == radar.OutcomeUnchanged:
			fmt.Fprintf(out, "%s: unchanged\n", r.SourceID)
		default:
			fmt.Fprintf(out, "%s: indexed as %s\n", r.SourceID, r.DocID[:12])
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d observations failed", failed, len(results))
	}
	return nil
}

// printDiff renders a sentence-level diff in unified-diff spirit.
func printDiff(out io.Writer, result *diff.Result) {
	if result.Degraded {
		fmt.Fprintln(out, "note: embedding backend unavailable, classification is lexical only")
	}
	for _, c := range result.Changes {
		switch c.Kind {
		case diff.KindAdded:
			fmt.Fprintf(out, "+ %s\n", c.AfterText)
		case diff.KindDeleted:
			fmt.Fprintf(out, "- %s\n", c.BeforeText)
		case diff.KindModified:
			fmt.Fprintf(out, "- %s\n", c.BeforeText)
			fmt.Fprintf(out, "+ %s (similarity %.2f)\n", c.AfterText, c.Similarity)
		case diff.KindUnchanged:
			fmt.Fprintf(out, "  %s\n", c.AfterText)
		}
	}
	fmt.Fprintln(out, strings.Repeat("-", 40))
}
