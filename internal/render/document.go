package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docrender/constants"
)

// DocumentPipeline renders word-processor files into a single document.pdf.
type DocumentPipeline struct {
	store     *Store
	runner    Runner
	pages     PageCounter
	settings  Settings
	assembler Assembler
	logger    *slog.Logger
}

func NewDocumentPipeline(store *Store, runner Runner, pages PageCounter, settings Settings, logger *slog.Logger) *DocumentPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentPipeline{
		store:     store,
		runner:    runner,
		pages:     pages,
		settings:  settings.withDefaults(),
		assembler: NewAssembler(store),
		logger:    logger,
	}
}

func (p *DocumentPipeline) Render(ctx context.Context, src SourceDocument, key string) (set ArtifactSet, err error) {
	logger := p.logger.With("cache_key", key, "format", constants.Document)

	defer func() {
		if err != nil {
			err = p.store.abort(key, err)
		}
	}()

	dir, err := p.store.Begin(key)
	if err != nil {
		return ArtifactSet{}, err
	}

	out, err := officeToPDF(ctx, p.runner, p.settings, src.Path, dir, key, logger)
	if err != nil {
		return ArtifactSet{}, err
	}
	canonical := filepath.Join(dir, documentFile)
	if out != canonical {
		if err := os.Rename(out, canonical); err != nil {
			return ArtifactSet{}, fmt.Errorf("rename rendered pdf: %w", err)
		}
	}

	if p.pages != nil {
		n, perr := p.pages.PageCount(canonical)
		switch {
		case perr != nil:
			logger.Warn("page count unavailable, skipping cross-check", "error", perr)
		case n == 0:
			return ArtifactSet{}, &ConversionError{
				Stage:  constants.StageOfficeToPDF,
				Reason: ReasonEmptyOutput,
				Key:    key,
				Err:    errors.New("rendered pdf has no pages"),
			}
		}
	}

	if err := p.store.Commit(key); err != nil {
		return ArtifactSet{}, err
	}
	pdf := p.assembler.Document(key)
	logger.Info("document converted", "url", pdf.URL)
	return ArtifactSet{Format: constants.Document, PDF: &pdf}, nil
}
