package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrender/internal/async"
	"github.com/joseph-ayodele/docrender/internal/ingest"
)

func newWarmCmd() *cobra.Command {
	var (
		watch         bool
		includeHidden bool
	)
	cmd := &cobra.Command{
		Use:   "warm <dir>",
		Short: "Convert every supported file under a directory ahead of viewers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			queue := async.NewWarmQueue(a.conv, logger,
				async.WithWorkers(cfg.Queue.Workers),
				async.WithQueueSize(cfg.Queue.Size),
				async.WithProcessTimeout(cfg.Queue.Timeout),
			)
			warmer := ingest.NewWarmer(queue, logger)

			if watch {
				err := warmer.Watch(ctx, ingest.WatchConfig{
					Roots:       []string{root},
					InitialScan: true,
					SkipHidden:  !includeHidden,
					Debounce:    cfg.Ingest.Debounce,
				})
				// drain what was queued before the signal
				queue.Shutdown(context.Background())
				if err != nil && ctx.Err() == nil {
					return err
				}
				success("watcher stopped")
				return nil
			}

			results, stats, err := warmer.WarmDirectory(ctx, root, !includeHidden)
			// Shutdown waits for the workers, so every queued key is done afterwards
			queue.Shutdown(context.Background())
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(map[string]any{"stats": stats, "results": results})
			}
			for _, r := range results {
				if r.Err != "" {
					warn("%s: %s", r.SourcePath, r.Err)
					continue
				}
				detail(string(r.Format), r.CacheKey)
			}
			success("scanned %d, queued %d, failed %d", stats.Scanned, stats.Succeeded, stats.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and convert new files as they appear")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also scan dot files and dot directories")
	return cmd
}
