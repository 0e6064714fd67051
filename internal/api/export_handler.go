package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/exports"
)

// createExportHandler answers 201 with the queued job, or 503 with the job in
// the body when it was recorded but not scheduled.
func createExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		job, err := cfg.Exports.Create(r.Context(), req.ProjectID, req.Preset)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, job)
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Exports.ListByProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(jobs))
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Exports.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func exportEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := cfg.Exports.Events(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(events))
	}
}

func exportWithEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := cfg.Exports.JobWithEvents(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		view.Events = orEmpty(view.Events)
		WriteJSON(w, http.StatusOK, view)
	}
}

// cancelExportHandler answers 202: the worker records the cancellation.
func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Exports.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, job)
	}
}

func dispatchExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Exports.Dispatch(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, job)
	}
}

// exportFileHandler streams the artifact of a succeeded job with Range
// support.
func exportFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Exports.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		if job.Status != exports.StatusSucceeded || job.OutputURI == nil {
			writeAppError(w, r, cfg.Logger, apperr.Precondition("export job %s is %s, no artifact to serve", job.ID, job.Status))
			return
		}
		if err := cfg.Playback.ServeFile(w, r, *job.OutputURI); err != nil {
			writeAppError(w, r, cfg.Logger, err)
		}
	}
}
