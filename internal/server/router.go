// Package server exposes the converter over HTTP and reports liveness over gRPC health.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/async"
	"github.com/joseph-ayodele/docrender/internal/common"
	"github.com/joseph-ayodele/docrender/internal/entity"
	"github.com/joseph-ayodele/docrender/internal/export"
	"github.com/joseph-ayodele/docrender/internal/render"
	"github.com/joseph-ayodele/docrender/internal/repository"
)

// Converter is what the handlers need from render.Converter.
type Converter interface {
	Convert(ctx context.Context, src render.SourceDocument, key string) (render.ArtifactSet, error)
	IsConverted(format constants.Format, key string) bool
	Artifacts(format constants.Format, key string) (render.ArtifactSet, error)
	ArtifactFile(key, name string) (string, bool)
}

// AttemptLister reads the conversion journal.
type AttemptLister interface {
	List(ctx context.Context, f repository.AttemptFilter) ([]*entity.ConversionAttempt, error)
}

// Deps wires the router. Queue and Attempts may be nil.
type Deps struct {
	Converter  Converter
	Queue      async.Queue
	Attempts   AttemptLister
	Mount      string // URL prefix of the artifact files, e.g. /converted
	UploadRoot string
	Timeout    time.Duration
	Logger     *slog.Logger
}

type handler struct {
	conv       Converter
	queue      async.Queue
	attempts   AttemptLister
	exporter   *export.Service
	uploadRoot string
	schema     *jsonschema.Schema
	logger     *slog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	schema, err := compileSchema("conversion_request.json", conversionRequestSchema)
	if err != nil {
		return nil, err
	}
	h := &handler{
		conv:       d.Converter,
		queue:      d.Queue,
		attempts:   d.Attempts,
		uploadRoot: d.UploadRoot,
		schema:     schema,
		logger:     d.Logger,
	}
	if d.Attempts != nil {
		h.exporter = export.NewService(d.Attempts, d.Logger)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// the request context only bounds waiting; conversions themselves run on their own deadlines
		if d.Timeout > 0 {
			r.Use(chimiddleware.Timeout(d.Timeout))
		}
		r.Post("/conversions", h.createConversion)
		r.Get("/conversions/{key}", h.getConversion)
		r.Get("/conversions/{key}/attempts", h.listAttempts)
		r.Get("/attempts.xlsx", h.exportAttempts)
	})

	mount := "/" + strings.Trim(d.Mount, "/")
	if mount == "/" {
		mount = "/converted"
	}
	r.Get(mount+"/{key}/{name}", h.serveArtifact)

	return r, nil
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimiddleware.GetReqID(r.Context())
			ctx := common.WithRequestID(r.Context(), reqID)
			r = r.WithContext(common.WithLogger(ctx, logger.With("request_id", reqID)))
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", reqID,
			)
		})
	}
}
