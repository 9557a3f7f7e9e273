package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove key directories left in progress by a crashed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				olderThan = cfg.Store.SweepGrace
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			removed, err := a.conv.Sweep(ctx, olderThan)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]any{"removed": removed})
			}
			for _, k := range removed {
				detail("removed", k)
			}
			success("swept %d incomplete keys older than %s", len(removed), olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "grace period for in-progress directories (default: SWEEP_GRACE)")
	return cmd
}
