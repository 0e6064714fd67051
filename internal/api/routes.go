package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-backend/internal/upload"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins, cfg.CORSMaxAge))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(cfg))
		r.Get("/docs/websockets", websocketNoteHandler())

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", createProjectHandler(cfg))
			r.Get("/", listProjectsHandler(cfg))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getProjectHandler(cfg))
				r.Patch("/", updateProjectHandler(cfg))
				r.Delete("/", deleteProjectHandler(cfg))
				r.Get("/media", listProjectMediaHandler(cfg))
				r.Post("/media/upload", uploadMediaHandler(cfg))
				r.Get("/tracks", listTracksHandler(cfg))
				r.Get("/clips", listProjectClipsHandler(cfg))
				r.Get("/transitions", listTransitionsHandler(cfg))
				r.Get("/exports", listExportsHandler(cfg))
			})
		})

		r.Post("/media", createMediaHandler(cfg))
		r.Get("/media/{id}", getMediaHandler(cfg))
		r.Delete("/media/{id}", deleteMediaHandler(cfg))
		r.Get("/media/{id}/file", mediaFileHandler(cfg))

		r.Post("/tracks", createTrackHandler(cfg))
		r.Patch("/tracks/{id}", updateTrackHandler(cfg))
		r.Delete("/tracks/{id}", deleteTrackHandler(cfg))
		r.Get("/tracks/{id}/clips", listTrackClipsHandler(cfg))

		r.Post("/clips", createClipHandler(cfg))
		r.Patch("/clips/{id}", updateClipHandler(cfg))
		r.Delete("/clips/{id}", deleteClipHandler(cfg))
		r.Get("/clips/{id}/trims", listTrimsHandler(cfg))

		r.Post("/trims", createTrimHandler(cfg))
		r.Delete("/trims/{id}", deleteTrimHandler(cfg))

		r.Post("/transitions", createTransitionHandler(cfg))
		r.Patch("/transitions/{id}", updateTransitionHandler(cfg))
		r.Delete("/transitions/{id}", deleteTransitionHandler(cfg))

		r.Post("/exports", createExportHandler(cfg))
		r.Route("/exports/{id}", func(r chi.Router) {
			r.Get("/", getExportHandler(cfg))
			r.Get("/events", exportEventsHandler(cfg))
			r.Get("/with-events", exportWithEventsHandler(cfg))
			r.Post("/cancel", cancelExportHandler(cfg))
			r.Post("/dispatch", dispatchExportHandler(cfg))
			r.Get("/file", exportFileHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:       "ok",
			Message:      "Healthy",
			Version:      cfg.Version,
			UptimeS:      int64(time.Since(cfg.StartTime).Seconds()),
			Presets:      orEmpty(cfg.Presets),
			ProbeEnabled: cfg.Prober != nil,
		}
		if cfg.Dispatcher != nil {
			resp.DispatcherRunning = cfg.Dispatcher.IsRunning()
			resp.ActiveExports = cfg.Dispatcher.ActiveCount()
		}
		switch cfg.Uploads.(type) {
		case *upload.LocalStore:
			resp.UploadBackend = "local"
		case *upload.MinIOStore:
			resp.UploadBackend = "minio"
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func websocketNoteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, MessageResponse{Message: websocketNote})
	}
}

func deletedResponse(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Deleted"})
}
