package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicwatch/radar/internal/radar"
)

func newStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine, err := radar.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			status, err := engine.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Fprintf(out, "indexed entries:    %d\n", status.IndexedEntries)
			fmt.Fprintf(out, "tracked sources:    %d\n", status.TrackedSources)
			fmt.Fprintf(out, "archived snapshots: %d\n", status.ArchivedSnaps)
			fmt.Fprintf(out, "embedding model:    %s\n", status.EmbeddingModel)
			if status.DegradedEmbedder {
				fmt.Fprintln(out, "embedder:           DEGRADED (hash-based fallback)")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
