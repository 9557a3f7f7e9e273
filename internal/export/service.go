package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docrender/internal/entity"
	"github.com/joseph-ayodele/docrender/internal/repository"
)

// AttemptLister is the slice of the attempt repository the export needs.
type AttemptLister interface {
	List(ctx context.Context, f repository.AttemptFilter) ([]*entity.ConversionAttempt, error)
}

// Service produces XLSX bytes of the conversion journal.
type Service struct {
	attempts AttemptLister
	logger   *slog.Logger
}

func NewService(attempts AttemptLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{attempts: attempts, logger: logger}
}

const sheet = "Attempts"

// ExportAttemptsXLSX returns a workbook with one row per attempt matching f, newest first.
// If f.Since is set it is truncated to the start of its UTC day.
func (s *Service) ExportAttemptsXLSX(ctx context.Context, f repository.AttemptFilter) ([]byte, error) {
	start := time.Now()

	if !f.Since.IsZero() {
		d := f.Since.UTC()
		f.Since = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}

	recs, err := s.attempts.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}

	x := excelize.NewFile()
	defer x.Close()
	// rename the default sheet rather than leaving an empty Sheet1 behind
	if err := x.SetSheetName(x.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Started At",
		"Cache Key",
		"Format",
		"Status",
		"Pages",
		"Duration (ms)",
		"Stage",
		"Reason",
		"Error",
		"Source Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = x.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, a := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = x.SetCellValue(sheet, cell, v)
		}

		write(1, a.StartedAt.UTC().Format(time.RFC3339))
		write(2, a.CacheKey)
		write(3, a.Format)
		write(4, a.Status)
		write(5, a.Pages)
		if a.FinishedAt != nil {
			write(6, a.Duration().Milliseconds())
		}
		write(7, deref(a.Stage))
		write(8, deref(a.Reason))
		write(9, truncate(deref(a.ErrorMessage), 200))
		write(10, a.SourcePath)
		row++
	}

	_ = x.SetColWidth(sheet, "A", "A", 22) // started
	_ = x.SetColWidth(sheet, "B", "B", 36) // key
	_ = x.SetColWidth(sheet, "C", "F", 12)
	_ = x.SetColWidth(sheet, "G", "H", 18)
	_ = x.SetColWidth(sheet, "I", "I", 60) // error
	_ = x.SetColWidth(sheet, "J", "J", 60) // path
	_ = x.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"cache_key", f.CacheKey,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
