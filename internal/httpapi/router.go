// Package httpapi exposes extraction, dialogue turns, episodes and clip
// uploads as JSON over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/migraineai/voicelog/internal/voice"
)

// MaxUploadBytes caps multipart clip uploads.
const MaxUploadBytes = 25 << 20

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc *voice.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", h.Extract)
		r.Post("/turn", h.Turn)

		r.Route("/episodes", func(r chi.Router) {
			r.Get("/", h.ListEpisodes)
			r.Post("/", h.CreateEpisode)
			r.Get("/{id}", h.GetEpisode)
			r.Patch("/{id}", h.UpdateEpisode)
			r.Delete("/{id}", h.DeleteEpisode)
		})

		r.Post("/clips", h.UploadClip)
		r.Get("/clips/{id}", h.GetClip)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
