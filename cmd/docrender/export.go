package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/export"
	"github.com/joseph-ayodele/docrender/internal/repository"
)

func newExportCmd() *cobra.Command {
	var (
		out    string
		key    string
		status string
		since  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the conversion journal to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repository.AttemptFilter{CacheKey: key, Status: constants.AttemptStatus(strings.ToUpper(status)), Limit: limit}
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("--since wants YYYY-MM-DD: %w", err)
				}
				f.Since = t
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(ctx)
			if a.attempts == nil {
				return errors.New("no journal configured; set DB_DRIVER and DB_URL")
			}

			data, err := export.NewService(a.attempts, logger).ExportAttemptsXLSX(ctx, f)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			if outputJSON {
				return printJSON(map[string]any{"out": out, "bytes": len(data)})
			}
			success("wrote %s (%d bytes)", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "attempts.xlsx", "output file")
	cmd.Flags().StringVar(&key, "key", "", "only this cache key")
	cmd.Flags().StringVar(&status, "status", "", "only attempts with this status")
	cmd.Flags().StringVar(&since, "since", "", "only attempts started on or after this day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 means no limit)")
	return cmd
}
