// Package api provides the HTTP surface of the K-OCR web corrector. The
// layer is deliberately thin: it translates requests into calls on the
// pipeline coordinator and the status service and maps their errors to
// status codes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/k-ocr/web-corrector/internal/observability"
	"github.com/k-ocr/web-corrector/internal/pipeline"
	"github.com/k-ocr/web-corrector/internal/status"
	"github.com/k-ocr/web-corrector/internal/tempstore"
)

// Deps bundles what the HTTP layer needs.
type Deps struct {
	Logger         *observability.Logger
	Coordinator    *pipeline.Coordinator
	Status         *status.Service
	Blobs          tempstore.Store
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all routes configured.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = observability.Nop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 50 << 20
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}

	h := &handler{
		log:            deps.Logger,
		coord:          deps.Coordinator,
		status:         deps.Status,
		blobs:          deps.Blobs,
		maxUploadBytes: deps.MaxUploadBytes,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(deps.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"k-ocr"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(Session)

		r.Post("/upload", h.upload)
		r.Post("/process/batch", h.processBatch)
		r.Get("/process/batch/status", h.batchStatus)
		r.Post("/process/{uploadID}", h.process)
		r.Get("/process/{jobID}/status", h.jobStatus)
		r.Delete("/process/{jobID}/cancel", h.cancel)
		r.Get("/download/{jobID}", h.download)
	})

	return r
}
