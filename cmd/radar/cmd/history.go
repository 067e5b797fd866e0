package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicwatch/radar/internal/radar"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <source-id>",
		Short: "List archived snapshots of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine, err := radar.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			snaps, err := engine.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintf(out, "no snapshots for %s\n", args[0])
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintf(out, "%s  %s  %d bytes\n",
					s.ObservedAt.Format("2006-01-02 15:04:05"), s.Hash[:12], len(s.Text))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum snapshots to list")
	return cmd
}
