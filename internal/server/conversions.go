package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/async"
	"github.com/joseph-ayodele/docrender/internal/common"
	"github.com/joseph-ayodele/docrender/internal/entity"
	"github.com/joseph-ayodele/docrender/internal/render"
	"github.com/joseph-ayodele/docrender/internal/repository"
)

const maxRequestBody = 1 << 20

type conversionRequest struct {
	SourcePath string `json:"source_path"`
	CacheKey   string `json:"cache_key"`
	Format     string `json:"format,omitempty"`
	Async      bool   `json:"async,omitempty"`
}

type conversionResponse struct {
	CacheKey  string `json:"cache_key"`
	Converted bool   `json:"converted"`
	Status    string `json:"status,omitempty"`
	render.ArtifactSet
}

type errorResponse struct {
	Error string `json:"error"`
}

// createConversion handles POST /api/conversions.
func (h *handler) createConversion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var req conversionRequest
	if err := decodeValidated(h.schema, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v := common.NewValidator().
		Field("source_path", req.SourcePath, common.Required, common.AbsolutePath, common.Within(h.uploadRoot)).
		Field("cache_key", req.CacheKey, common.CacheKey)
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format, err := resolveFormat(req.Format, req.SourcePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	src := render.SourceDocument{Path: filepath.Clean(req.SourcePath), Format: format}
	logger := common.LoggerFromContext(ctx, h.logger).With("cache_key", req.CacheKey, "format", format)

	if req.Async && !h.conv.IsConverted(format, req.CacheKey) {
		if h.queue == nil {
			writeError(w, http.StatusServiceUnavailable, "background conversions are disabled")
			return
		}
		err := h.queue.Enqueue(ctx, async.Job{
			Source:      src,
			Key:         req.CacheKey,
			SubmittedAt: time.Now(),
			RequestID:   common.RequestIDFromContext(ctx),
		})
		if err != nil {
			logger.Warn("enqueue failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, conversionResponse{
			CacheKey:    req.CacheKey,
			Status:      string(constants.AttemptStatusQueued),
			ArtifactSet: render.ArtifactSet{Format: format},
		})
		return
	}

	set, err := h.conv.Convert(ctx, src, req.CacheKey)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("conversion failed", "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{
		CacheKey:    req.CacheKey,
		Converted:   true,
		Status:      string(constants.AttemptStatusConverted),
		ArtifactSet: set,
	})
}

// getConversion handles GET /api/conversions/{key}?format=.
func (h *handler) getConversion(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !constants.IsValidCacheKey(key) {
		writeError(w, http.StatusBadRequest, "invalid cache key")
		return
	}

	formats := []constants.Format{constants.SlideDeck, constants.Document}
	if q := r.URL.Query().Get("format"); q != "" {
		f, ok := constants.ParseFormat(q)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", q))
			return
		}
		formats = []constants.Format{f}
	}

	for _, f := range formats {
		if !h.conv.IsConverted(f, key) {
			continue
		}
		set, err := h.conv.Artifacts(f, key)
		if err != nil {
			// removed between the check and the listing
			break
		}
		writeJSON(w, http.StatusOK, conversionResponse{CacheKey: key, Converted: true, ArtifactSet: set})
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{CacheKey: key})
}

// listAttempts handles GET /api/conversions/{key}/attempts.
func (h *handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeError(w, http.StatusNotFound, "attempt journal is not configured")
		return
	}
	key := chi.URLParam(r, "key")
	if !constants.IsValidCacheKey(key) {
		writeError(w, http.StatusBadRequest, "invalid cache key")
		return
	}
	recs, err := h.attempts.List(r.Context(), repository.AttemptFilter{CacheKey: key, Limit: 50})
	if err != nil {
		h.logger.Error("list attempts failed", "cache_key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "list attempts failed")
		return
	}
	if recs == nil {
		recs = []*entity.ConversionAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cache_key": key, "attempts": recs})
}

// exportAttempts handles GET /api/attempts.xlsx?key=&since=YYYY-MM-DD.
func (h *handler) exportAttempts(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotFound, "attempt journal is not configured")
		return
	}
	f := repository.AttemptFilter{CacheKey: r.URL.Query().Get("key")}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", s))
			return
		}
		f.Since = t
	}
	out, err := h.exporter.ExportAttemptsXLSX(r.Context(), f)
	if err != nil {
		h.logger.Error("export attempts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="conversion-attempts.xlsx"`)
	_, _ = w.Write(out)
}

// serveArtifact serves one file of a committed key.
func (h *handler) serveArtifact(w http.ResponseWriter, r *http.Request) {
	p, ok := h.conv.ArtifactFile(chi.URLParam(r, "key"), chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, p)
}

func resolveFormat(requested, sourcePath string) (constants.Format, error) {
	if requested != "" {
		f, ok := constants.ParseFormat(requested)
		if !ok {
			return "", fmt.Errorf("unknown format %q", requested)
		}
		return f, nil
	}
	if f := constants.MapExtToFormat(filepath.Ext(sourcePath)); f != "" {
		return f, nil
	}
	return "", fmt.Errorf("cannot infer format from %q; pass format", filepath.Base(sourcePath))
}

// statusFor maps core errors to HTTP status codes. Every render failure is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, render.ErrInvalidKey), errors.Is(err, render.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, render.ErrBusy), errors.Is(err, render.ErrFormatConflict):
		return http.StatusConflict
	case errors.Is(err, render.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
