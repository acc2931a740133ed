package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// events serves the server-sent event stream of panel updates.
func NewRouter(service TrackerServiceI, events http.Handler, maxUploadSize int64, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	h := NewTrackerHandler(service, maxUploadSize, logger)

	r.Post("/collect", h.Collect)
	r.Route("/download", func(r chi.Router) {
		r.Post("/", h.Download)
		r.Post("/multiple", h.DownloadMultiple)
	})
	r.Post("/scene-detection", h.DetectScenes)

	r.Route("/panels", func(r chi.Router) {
		r.Get("/", h.ListPanels)
		r.Get("/{surface}", h.GetPanel)
		r.Delete("/{surface}", h.ClosePanel)
	})

	r.Get("/events", streamHandler(events, logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// streamHandler lifts the server write timeout for long-lived event streams.
func streamHandler(events http.Handler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			logger.Debug("could not clear write deadline for event stream", "error", err)
		}
		events.ServeHTTP(w, r)
	}
}
