package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/ingest"
	"github.com/joseph-ayodele/docrender/internal/render"
)

func newConvertCmd() *cobra.Command {
	var (
		key    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "convert <source>",
		Short: "Convert one file and print its artifact set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			f, err := resolveFormat(format, src)
			if err != nil {
				return err
			}
			if key == "" {
				key, _, err = ingest.KeyFor(src)
				if err != nil {
					return fmt.Errorf("derive cache key: %w", err)
				}
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			start := time.Now()
			set, err := a.conv.Convert(ctx, render.SourceDocument{Path: src, Format: f}, key)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(map[string]any{"cache_key": key, "artifacts": set})
			}
			success("converted %s in %s", filepath.Base(src), time.Since(start).Round(time.Millisecond))
			printArtifacts(key, set)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "cache key (default: derived from file name and content hash)")
	cmd.Flags().StringVar(&format, "format", "", "slides|document (default: from extension)")
	return cmd
}

// resolveFormat honors an explicit format and otherwise maps the file extension.
func resolveFormat(flag, src string) (constants.Format, error) {
	if flag != "" {
		f, ok := constants.ParseFormat(flag)
		if !ok {
			return "", fmt.Errorf("unknown format %q", flag)
		}
		return f, nil
	}
	f := constants.MapExtToFormat(filepath.Ext(src))
	if f == "" {
		return "", fmt.Errorf("cannot infer format from %q, pass --format", filepath.Ext(src))
	}
	return f, nil
}

func printArtifacts(key string, set render.ArtifactSet) {
	detail("key", key)
	detail("format", string(set.Format))
	if set.PDF != nil {
		detail("pdf", set.PDF.URL)
		return
	}
	detail("pages", strconv.Itoa(len(set.Slides)))
	for _, s := range set.Slides {
		detail(fmt.Sprintf("  %03d", s.Page), s.ImageURL)
	}
}
