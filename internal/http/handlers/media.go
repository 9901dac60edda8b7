package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/storage"
)

// MediaHandler handles raw byte endpoints: media upload and artifact
// download. These bypass the typed API because they stream multipart
// bodies and files.
type MediaHandler struct {
	uploads       *storage.UploadStore
	store         *storage.Store
	maxUploadSize int64
	logger        *slog.Logger
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(uploads *storage.UploadStore, store *storage.Store, maxUploadSize int64, logger *slog.Logger) *MediaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{
		uploads:       uploads,
		store:         store,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("component", "media"),
	}
}

// Register registers the raw routes on the router.
func (h *MediaHandler) Register(r chi.Router) {
	r.Post("/api/v1/media", h.Upload)
	r.Get("/api/v1/tasks/{id}/artifacts/*", h.Artifact)
	r.Get("/api/v1/tasks/{id}/log", h.Log)
}

// UploadResponse returns the id to reference in task creation.
type UploadResponse struct {
	UploadID string `json:"upload_id"`
	Filename string `json:"filename"`
}

// Upload accepts a multipart form with a single "file" field.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	defer file.Close()

	id, err := h.uploads.Put(header.Filename, file)
	if err != nil {
		h.logger.Error("upload failed", "filename", header.Filename, "error", err)
		h.writeError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, UploadResponse{
		UploadID: id,
		Filename: header.Filename,
	})
}

// Artifact streams one task workspace file.
func (h *MediaHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	rel := chi.URLParam(r, "*")
	if !storage.IsServableArtifact(rel) {
		h.writeError(w, http.StatusNotFound, "no such artifact")
		return
	}

	f, fi, err := h.store.OpenArtifact(taskID, rel)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	defer f.Close()

	http.ServeContent(w, r, path.Base(rel), fi.ModTime(), f)
}

// Log streams the processing log as plain text.
func (h *MediaHandler) Log(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	f, fi, err := h.store.OpenArtifact(taskID, storage.ProcessingLog)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeContent(w, r, storage.ProcessingLog, fi.ModTime(), f)
}

func (h *MediaHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		h.writeError(w, http.StatusNotFound, "no such task")
	case models.KindOf(err) == models.KindInvalidRequest:
		h.writeError(w, http.StatusNotFound, "no such artifact")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *MediaHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("response encode failed", "error", err)
	}
}

func (h *MediaHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
