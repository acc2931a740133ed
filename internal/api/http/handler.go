package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/veranemoloko/video-tracker/internal/domain"
	errpkg "github.com/veranemoloko/video-tracker/internal/errors"
	"github.com/veranemoloko/video-tracker/internal/validation"
	"github.com/veranemoloko/video-tracker/internal/worker"
)

const multipartMemory = 32 << 20

// TrackerServiceI defines the interface for job submission and panel tracking.
type TrackerServiceI interface {
	CollectVideos(ctx context.Context, req domain.CollectRequest) (domain.SubmitResponse, error)
	DownloadVideo(ctx context.Context, req domain.DownloadRequest) (domain.SubmitResponse, error)
	DownloadVideos(ctx context.Context, req domain.MultipleDownloadRequest) (domain.SubmitResponse, error)
	DetectScenes(ctx context.Context, req domain.SceneDetectionRequest, video io.Reader) (domain.SubmitResponse, error)
	GetPanel(ctx context.Context, surface domain.Surface) (domain.PanelView, error)
	ListPanels(ctx context.Context) ([]domain.PanelView, error)
	ClosePanel(ctx context.Context, surface domain.Surface) error
}

// TrackerHandler handles HTTP requests for jobs and panels.
type TrackerHandler struct {
	service       TrackerServiceI
	maxUploadSize int64
	logger        *slog.Logger
}

// NewTrackerHandler creates a new TrackerHandler. Scene detection uploads
// larger than maxUploadSize bytes are rejected.
func NewTrackerHandler(service TrackerServiceI, maxUploadSize int64, logger *slog.Logger) *TrackerHandler {
	return &TrackerHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Collect handles POST /collect.
func (h *TrackerHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req domain.CollectRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if !h.validate(w, req) {
		return
	}

	resp, err := h.service.CollectVideos(r.Context(), req)
	h.accepted(w, resp, err)
}

// Download handles POST /download.
func (h *TrackerHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req domain.DownloadRequest
	if !h.decode(w, r, &req) || !h.validate(w, req) {
		return
	}

	resp, err := h.service.DownloadVideo(r.Context(), req)
	h.accepted(w, resp, err)
}

// DownloadMultiple handles POST /download/multiple.
func (h *TrackerHandler) DownloadMultiple(w http.ResponseWriter, r *http.Request) {
	var req domain.MultipleDownloadRequest
	if !h.decode(w, r, &req) || !h.validate(w, req) {
		return
	}
	if err := validation.ValidateURLs(req.VideoURLs); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.DownloadVideos(r.Context(), req)
	h.accepted(w, resp, err)
}

// DetectScenes handles the multipart POST /scene-detection upload.
func (h *TrackerHandler) DetectScenes(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		if r.ContentLength > h.maxUploadSize {
			writeError(w, http.StatusRequestEntityTooLarge, "video file is too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "video file is too large")
			return
		}
		h.logger.Warn("failed to parse upload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	req := domain.SceneDetectionRequest{
		FileName: header.Filename,
		Method:   r.FormValue("method"),
	}
	if req.AdaptiveThreshold, err = formFloat(r, "adaptive_threshold"); err != nil {
		writeError(w, http.StatusBadRequest, "adaptive_threshold must be a number")
		return
	}
	if req.ContentThreshold, err = formFloat(r, "content_threshold"); err != nil {
		writeError(w, http.StatusBadRequest, "content_threshold must be a number")
		return
	}
	req.Normalize()
	if !h.validate(w, req) {
		return
	}

	resp, err := h.service.DetectScenes(r.Context(), req, file)
	h.accepted(w, resp, err)
}

// ListPanels handles GET /panels.
func (h *TrackerHandler) ListPanels(w http.ResponseWriter, r *http.Request) {
	panels, err := h.service.ListPanels(r.Context())
	if err != nil {
		h.logger.Error("failed to list panels", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, panels)
}

// GetPanel handles GET /panels/{surface}.
func (h *TrackerHandler) GetPanel(w http.ResponseWriter, r *http.Request) {
	surface := domain.Surface(chi.URLParam(r, "surface"))

	view, err := h.service.GetPanel(r.Context(), surface)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClosePanel handles DELETE /panels/{surface}.
func (h *TrackerHandler) ClosePanel(w http.ResponseWriter, r *http.Request) {
	surface := domain.Surface(chi.URLParam(r, "surface"))

	if err := h.service.ClosePanel(r.Context(), surface); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackerHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *TrackerHandler) validate(w http.ResponseWriter, req interface{}) bool {
	if err := validation.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *TrackerHandler) accepted(w http.ResponseWriter, resp domain.SubmitResponse, err error) {
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *TrackerHandler) writeServiceError(w http.ResponseWriter, err error) {
	var transportErr *worker.TransportError

	switch {
	case errors.Is(err, errpkg.ErrUnknownSurface), errors.Is(err, errpkg.ErrPanelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errpkg.ErrServiceClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &transportErr), errors.Is(err, errpkg.ErrEmptyTaskHandle):
		h.logger.Error("worker request failed", "error", err)
		writeError(w, http.StatusBadGateway, "worker request failed")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func formFloat(r *http.Request, key string) (float64, error) {
	v := r.FormValue(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
