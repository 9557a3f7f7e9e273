package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/repository"
)

func newStatusCmd() *cobra.Command {
	var (
		format  string
		history int
	)
	cmd := &cobra.Command{
		Use:   "status <key>",
		Short: "Show whether a key is converted and its recent attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !constants.IsValidCacheKey(key) {
				return fmt.Errorf("invalid cache key %q", key)
			}
			formats := []constants.Format{constants.SlideDeck, constants.Document}
			if format != "" {
				f, ok := constants.ParseFormat(format)
				if !ok {
					return fmt.Errorf("unknown format %q", format)
				}
				formats = []constants.Format{f}
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			out := map[string]any{"cache_key": key}
			converted := false
			for _, f := range formats {
				if !a.conv.IsConverted(f, key) {
					continue
				}
				set, err := a.conv.Artifacts(f, key)
				if err != nil {
					return err
				}
				converted = true
				out["artifacts"] = set
				if !outputJSON {
					success("%s is converted", key)
					printArtifacts(key, set)
				}
				break
			}
			out["converted"] = converted
			if !converted && !outputJSON {
				if a.store.InProgress(key) {
					warn("%s is being converted", key)
				} else {
					warn("%s is not converted", key)
				}
			}

			if a.attempts != nil && history > 0 {
				attempts, err := a.attempts.List(ctx, repository.AttemptFilter{CacheKey: key, Limit: history})
				if err != nil {
					return err
				}
				out["attempts"] = attempts
				if !outputJSON {
					for _, at := range attempts {
						line := fmt.Sprintf("%s  %-9s pages=%d", at.StartedAt.Local().Format("2006-01-02 15:04:05"), at.Status, at.Pages)
						if at.Reason != nil {
							line += "  reason=" + *at.Reason
						}
						info("%s", line)
					}
				}
			}

			if outputJSON {
				return printJSON(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "only check this format (slides|document)")
	cmd.Flags().IntVar(&history, "history", 5, "number of journal attempts to show (0 disables)")
	return cmd
}
