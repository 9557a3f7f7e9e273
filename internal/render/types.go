// Package render turns office documents into cached web artifacts by driving external
// renderers. A cache key maps to one directory under the artifact store; the directory
// is either complete or absent from a caller's point of view.
package render

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/entity"
)

// SourceDocument is an already uploaded file. The core reads it and never deletes it.
type SourceDocument struct {
	Path   string
	Format constants.Format
}

// Slide is one rendered page of a slide deck.
type Slide struct {
	Page         int    `json:"page"`
	ImageURL     string `json:"imageUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// PDFArtifact is the rendered form of a word-processor document.
type PDFArtifact struct {
	URL string `json:"url"`
}

// ArtifactSet holds either Slides (slide decks) or PDF (documents).
type ArtifactSet struct {
	Format constants.Format `json:"format"`
	Slides []Slide          `json:"slides,omitempty"`
	PDF    *PDFArtifact     `json:"pdf,omitempty"`
}

// Pages is the number of rendered pages (1 for a PDF artifact).
func (s ArtifactSet) Pages() int {
	if s.PDF != nil {
		return 1
	}
	return len(s.Slides)
}

// Pipeline renders one source into the store directory of key.
type Pipeline interface {
	Render(ctx context.Context, src SourceDocument, key string) (ArtifactSet, error)
}

// PageCounter reports the number of pages of a PDF file.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// Locker excludes other processes from rendering the same key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Journal records attempts for diagnostics. Failures to record never fail a conversion.
type Journal interface {
	Start(ctx context.Context, a *entity.ConversionAttempt) error
	Finish(ctx context.Context, id uuid.UUID, status constants.AttemptStatus, pages int, stage, reason, errMsg string, finishedAt time.Time) error
}

// Settings configures the external renderers.
type Settings struct {
	Soffice          string
	Magick           string
	DPI              int
	OfficeTimeout    time.Duration
	RasterizeTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Soffice == "" {
		s.Soffice = "soffice"
	}
	if s.Magick == "" {
		s.Magick = "magick"
	}
	if s.DPI <= 0 {
		s.DPI = 150
	}
	if s.OfficeTimeout <= 0 {
		s.OfficeTimeout = 60 * time.Second
	}
	if s.RasterizeTimeout <= 0 {
		s.RasterizeTimeout = 120 * time.Second
	}
	return s
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }
