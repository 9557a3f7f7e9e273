package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joseph-ayodele/docrender/constants"
)

// SlidePipeline renders slide decks in two stages: office-to-pdf, then rasterize.
type SlidePipeline struct {
	store     *Store
	runner    Runner
	pages     PageCounter
	settings  Settings
	assembler Assembler
	logger    *slog.Logger
}

func NewSlidePipeline(store *Store, runner Runner, pages PageCounter, settings Settings, logger *slog.Logger) *SlidePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlidePipeline{
		store:     store,
		runner:    runner,
		pages:     pages,
		settings:  settings.withDefaults(),
		assembler: NewAssembler(store),
		logger:    logger,
	}
}

// Render materializes slide-NNN.png for every page of src under key, or leaves no
// directory behind.
func (p *SlidePipeline) Render(ctx context.Context, src SourceDocument, key string) (set ArtifactSet, err error) {
	logger := p.logger.With("cache_key", key, "format", constants.SlideDeck)

	defer func() {
		if err != nil {
			err = p.store.abort(key, err)
		}
	}()

	dir, err := p.store.Begin(key)
	if err != nil {
		return ArtifactSet{}, err
	}

	pdfPath, err := officeToPDF(ctx, p.runner, p.settings, src.Path, dir, key, logger)
	if err != nil {
		return ArtifactSet{}, err
	}
	logger.Debug("intermediate pdf ready", "pdf", pdfPath)

	files, runErr, err := p.rasterize(ctx, pdfPath, dir, key, logger)
	if err != nil {
		return ArtifactSet{}, err
	}

	verified := false
	if p.pages != nil {
		n, perr := p.pages.PageCount(pdfPath)
		switch {
		case perr != nil:
			logger.Warn("page count unavailable, skipping cross-check", "error", perr)
		case n != len(files):
			return ArtifactSet{}, &ConversionError{
				Stage:  constants.StageRasterize,
				Reason: ReasonPageCountMismatch,
				Key:    key,
				Err:    fmt.Errorf("pdf has %d pages, rasterizer wrote %d images", n, len(files)),
			}
		default:
			verified = true
		}
	}
	// without a page count a failed exit may mean the rasterizer stopped early
	if runErr != nil {
		if !verified {
			return ArtifactSet{}, &ConversionError{Stage: constants.StageRasterize, Reason: ReasonExitStatus, Key: key, Err: runErr}
		}
		logger.Warn("rasterizer reported failure but wrote every page", "pages", len(files), "error", runErr)
	}

	if err := os.Remove(pdfPath); err != nil {
		logger.Warn("failed to remove intermediate pdf", "pdf", pdfPath, "error", err)
	}
	if err := p.store.Commit(key); err != nil {
		return ArtifactSet{}, err
	}

	logger.Info("slide deck converted", "pages", len(files))
	return ArtifactSet{Format: constants.SlideDeck, Slides: p.assembler.Slides(key, files)}, nil
}

// rasterize renders one flattened RGB image per page on a white background.
// Transparent layers otherwise come out as solid black pages in some renderers.
// exitErr is the rasterizer's own failure when it still wrote a well-formed page set.
func (p *SlidePipeline) rasterize(ctx context.Context, pdfPath, dir, key string, logger *slog.Logger) (files []string, exitErr error, err error) {
	// magick -density 150 in.pdf -background white -alpha remove -alpha off
	//   -colorspace sRGB -type TrueColor -scene 1 slide-%03d.png
	res, runErr := p.runner.Run(ctx, Command{
		Name: p.settings.Magick,
		Args: []string{
			"-density", strconv.Itoa(p.settings.DPI),
			pdfPath,
			"-background", "white",
			"-alpha", "remove",
			"-alpha", "off",
			"-colorspace", "sRGB",
			"-type", "TrueColor",
			"-scene", "1",
			filepath.Join(dir, slidePattern),
		},
		Timeout: p.settings.RasterizeTimeout,
	}, logger)

	if reason := interrupted(res); reason != "" {
		return nil, nil, &ConversionError{Stage: constants.StageRasterize, Reason: reason, Key: key, Output: string(res.Output), Err: runErr}
	}
	files, stray, err := scanSlides(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("list rasterized pages: %w", err)
	}
	if len(files) == 0 {
		return nil, nil, &ConversionError{Stage: constants.StageRasterize, Reason: ReasonEmptyOutput, Key: key, Output: string(res.Output), Err: runErr}
	}
	if len(stray) > 0 || !contiguous(files) {
		return nil, nil, &ConversionError{
			Stage:  constants.StageRasterize,
			Reason: ReasonUnexpectedOutput,
			Key:    key,
			Output: string(res.Output),
			Err:    fmt.Errorf("%d page images not numbered 1..%d, stray entries %v", len(files), len(files), stray),
		}
	}
	return files, runErr, nil
}
