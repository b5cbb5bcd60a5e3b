package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/k-ocr/web-corrector/internal/job"
	"github.com/k-ocr/web-corrector/internal/observability"
	"github.com/k-ocr/web-corrector/internal/pipeline"
	"github.com/k-ocr/web-corrector/internal/status"
	"github.com/k-ocr/web-corrector/internal/tempstore"
)

type handler struct {
	log            *observability.Logger
	coord          *pipeline.Coordinator
	status         *status.Service
	blobs          tempstore.Store
	maxUploadBytes int64
}

var pdfMagic = []byte("%PDF")

// upload handles POST /api/upload: a multipart PDF into the temp store.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed", err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "multipart field 'file' is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read upload", err.Error())
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		h.writeError(w, http.StatusUnsupportedMediaType, "only PDF documents are accepted", "")
		return
	}

	ref, err := h.blobs.Save(r.Context(), owner, data, "application/pdf")
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "could not store upload", "")
		return
	}

	h.log.WithOwner(owner).Info().Int("bytes", len(data)).Msg("document uploaded")
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"upload_id": ref,
		"size":      len(data),
	})
}

// process handles POST /api/process/{uploadID}: create a job for an uploaded
// document and start it. The body is the options JSON; empty means defaults.
func (h *handler) process(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	uploadID := chi.URLParam(r, "uploadID")

	rawOptions, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read request body", err.Error())
		return
	}

	rec, err := h.coord.CreateJob(r.Context(), owner, uploadID, rawOptions)
	if err != nil {
		var verr *job.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusBadRequest, verr.Error(), "")
		case errors.Is(err, tempstore.ErrNotFound), errors.Is(err, tempstore.ErrForbidden):
			// Foreign uploads are indistinguishable from absent ones.
			h.writeError(w, http.StatusNotFound, "upload not found", "")
		default:
			h.writeError(w, http.StatusInternalServerError, "could not create job", "")
		}
		return
	}

	if err := h.coord.Start(r.Context(), rec.ID, owner); err != nil {
		h.writeError(w, http.StatusInternalServerError, "could not start job", "")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":         rec.ID.String(),
		"status":         string(job.StageConverting),
		"estimated_secs": rec.EstimatedSecs,
	})
}

// maxBatchSize bounds how many documents one batch request may start.
const maxBatchSize = 20

// processBatch handles POST /api/process/batch: one job per upload, all with
// the same options, started together.
func (h *handler) processBatch(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())

	var req struct {
		UploadIDs []string        `json:"upload_ids"`
		Options   json.RawMessage `json:"options,omitempty"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed batch request", err.Error())
		return
	}
	if len(req.UploadIDs) > maxBatchSize {
		h.writeError(w, http.StatusBadRequest, "too many documents in one batch", "")
		return
	}

	recs, err := h.coord.StartBatch(r.Context(), owner, req.UploadIDs, req.Options)
	if err != nil {
		var verr *job.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusBadRequest, verr.Error(), "")
		case errors.Is(err, tempstore.ErrNotFound), errors.Is(err, tempstore.ErrForbidden):
			h.writeError(w, http.StatusNotFound, "upload not found", "")
		default:
			h.writeError(w, http.StatusInternalServerError, "could not start batch", "")
		}
		return
	}

	jobs := make([]map[string]any, len(recs))
	for i, rec := range recs {
		jobs[i] = map[string]any{
			"job_id":         rec.ID.String(),
			"upload_id":      rec.SourceBlobRef,
			"status":         string(job.StageConverting),
			"estimated_secs": rec.EstimatedSecs,
		}
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"total": len(jobs),
		"jobs":  jobs,
	})
}

// batchStatus handles GET /api/process/batch/status?ids=a,b,c.
func (h *handler) batchStatus(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'ids' is required", "")
		return
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchSize {
		h.writeError(w, http.StatusBadRequest, "too many job ids", "")
		return
	}
	ids := make([]uuid.UUID, len(parts))
	for i, p := range parts {
		id, err := uuid.Parse(strings.TrimSpace(p))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid job id", p)
			return
		}
		ids[i] = id
	}

	view, err := h.status.GetBatchStatus(r.Context(), ids, owner)
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// jobStatus handles GET /api/process/{jobID}/status.
func (h *handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	id, ok := h.parseJobID(w, r)
	if !ok {
		return
	}

	view, err := h.status.GetStatus(r.Context(), id, owner)
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// cancel handles DELETE /api/process/{jobID}/cancel.
func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	id, ok := h.parseJobID(w, r)
	if !ok {
		return
	}

	if err := h.coord.Cancel(r.Context(), id, owner); err != nil {
		h.writeJobError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":           id.String(),
		"cancel_requested": true,
	})
}

// download handles GET /api/download/{jobID}: the corrected text of a
// completed job.
func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	id, ok := h.parseJobID(w, r)
	if !ok {
		return
	}

	entry, err := h.status.ResolveDownload(r.Context(), id, owner)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="corrected.txt"`)
	w.WriteHeader(http.StatusOK)
	w.Write(entry.Data)
}

func (h *handler) parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid job id", "")
		return uuid.Nil, false
	}
	return id, true
}

// writeJobError maps domain errors to status codes. Ownership mismatches
// answer exactly like missing jobs so IDs cannot be probed across sessions.
func (h *handler) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrNotFound), errors.Is(err, job.ErrForbidden),
		errors.Is(err, tempstore.ErrNotFound), errors.Is(err, tempstore.ErrForbidden):
		h.writeError(w, http.StatusNotFound, "job not found", "")
	case errors.Is(err, job.ErrAlreadyStarted):
		h.writeError(w, http.StatusConflict, "job already started", "")
	case errors.Is(err, job.ErrInvalidState):
		h.writeError(w, http.StatusConflict, "operation not allowed in the job's current state", "")
	default:
		h.writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (h *handler) writeError(w http.ResponseWriter, code int, msg, detail string) {
	body := map[string]string{"error": msg}
	if detail != "" {
		body["detail"] = detail
	}
	h.writeJSON(w, code, body)
}
