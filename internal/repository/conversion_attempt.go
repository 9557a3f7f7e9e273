package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/common"
	"github.com/joseph-ayodele/docrender/internal/entity"
)

// AttemptFilter narrows List. Zero values mean no restriction.
type AttemptFilter struct {
	CacheKey string
	Status   constants.AttemptStatus
	Since    time.Time
	Limit    int
}

type ConversionAttemptRepository interface {
	Start(ctx context.Context, a *entity.ConversionAttempt) error
	Finish(ctx context.Context, id uuid.UUID, status constants.AttemptStatus, pages int, stage, reason, errMsg string, finishedAt time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ConversionAttempt, error)
	List(ctx context.Context, f AttemptFilter) ([]*entity.ConversionAttempt, error)
}

type conversionAttemptRepo struct {
	db  *DB
	log *slog.Logger
}

func NewConversionAttemptRepository(db *DB, log *slog.Logger) ConversionAttemptRepository {
	return &conversionAttemptRepo{db: db, log: log}
}

const attemptColumns = `id, cache_key, format, source_path, status, stage, reason, error_message, pages, started_at, finished_at`

func (r *conversionAttemptRepo) Start(ctx context.Context, a *entity.ConversionAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(`INSERT INTO conversion_attempt (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID.String(), a.CacheKey, a.Format, a.SourcePath, a.Status,
		a.Stage, a.Reason, a.ErrorMessage, a.Pages, a.StartedAt.UTC(), nullableTime(a.FinishedAt),
	)
	if err != nil {
		r.log.Error("conversion_attempt start failed", "cache_key", a.CacheKey, "err", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	r.log.Debug("conversion_attempt started", "attempt_id", a.ID, "cache_key", a.CacheKey, "format", a.Format)
	return nil
}

func (r *conversionAttemptRepo) Finish(ctx context.Context, id uuid.UUID, status constants.AttemptStatus, pages int, stage, reason, errMsg string, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`UPDATE conversion_attempt
		SET status = ?, pages = ?, stage = ?, reason = ?, error_message = ?, finished_at = ?
		WHERE id = ?`),
		string(status), pages, nullableString(stage), nullableString(reason), nullableString(errMsg), finishedAt.UTC(), id.String(),
	)
	if err != nil {
		r.log.Error("conversion_attempt finish failed", "attempt_id", id, "err", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("conversion attempt %s not found", id), common.ErrNotFound)
	}
	if status == constants.AttemptStatusFailed {
		r.log.Warn("conversion_attempt finished (FAILED)", "attempt_id", id, "stage", stage, "reason", reason)
	} else {
		r.log.Debug("conversion_attempt finished", "attempt_id", id, "status", status, "pages", pages)
	}
	return nil
}

func (r *conversionAttemptRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ConversionAttempt, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+attemptColumns+` FROM conversion_attempt WHERE id = ?`), id.String())
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("conversion attempt %s not found", id), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return a, nil
}

// List returns attempts newest first.
func (r *conversionAttemptRepo) List(ctx context.Context, f AttemptFilter) ([]*entity.ConversionAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM conversion_attempt WHERE 1=1`
	var args []any
	if f.CacheKey != "" {
		query += ` AND cache_key = ?`
		args = append(args, f.CacheKey)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, f.Since.UTC())
	}
	query += ` ORDER BY started_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		r.log.Error("conversion_attempt list failed", "cache_key", f.CacheKey, "err", err)
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ConversionAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s rowScanner) (*entity.ConversionAttempt, error) {
	var (
		a                     entity.ConversionAttempt
		id                    string
		stage, reason, errMsg sql.NullString
		started, finished     timeValue
	)
	if err := s.Scan(&id, &a.CacheKey, &a.Format, &a.SourcePath, &a.Status, &stage, &reason, &errMsg, &a.Pages, &started, &finished); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("attempt id %q: %w", id, err)
	}
	a.ID = parsed
	a.Stage = stringPtr(stage)
	a.Reason = stringPtr(reason)
	a.ErrorMessage = stringPtr(errMsg)
	if started.valid {
		a.StartedAt = started.t
	}
	if finished.valid {
		t := finished.t
		a.FinishedAt = &t
	}
	return &a, nil
}

// timeValue scans both native timestamps and the text form sqlite may hand back.
type timeValue struct {
	t     time.Time
	valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		v.valid = false
		return nil
	case time.Time:
		v.t, v.valid = x.UTC(), true
		return nil
	case []byte:
		return v.parse(string(x))
	case string:
		return v.parse(x)
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (v *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v.t, v.valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
