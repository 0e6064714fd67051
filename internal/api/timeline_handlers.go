package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-backend/internal/timeline"
)

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.NewProject
		if !decodeJSON(w, r, &req) {
			return
		}
		project, err := cfg.Timeline.CreateProject(r.Context(), req)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, project)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Timeline.ListProjects(r.Context())
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(projects))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := cfg.Timeline.GetProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, project)
	}
}

func updateProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch timeline.ProjectPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		project, err := cfg.Timeline.UpdateProject(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, project)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		deletedResponse(w)
	}
}

func createTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.NewTrack
		if !decodeJSON(w, r, &req) {
			return
		}
		track, err := cfg.Timeline.CreateTrack(r.Context(), req)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, track)
	}
}

func listTracksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracks, err := cfg.Timeline.ListTracks(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(tracks))
	}
}

func updateTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch timeline.TrackPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		track, err := cfg.Timeline.UpdateTrack(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, track)
	}
}

func deleteTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.DeleteTrack(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		deletedResponse(w)
	}
}

func createClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.NewClip
		if !decodeJSON(w, r, &req) {
			return
		}
		clip, err := cfg.Timeline.CreateClip(r.Context(), req)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, clip)
	}
}

func listProjectClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Timeline.ListClips(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(clips))
	}
}

func listTrackClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Timeline.ListTrackClips(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(clips))
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch timeline.ClipPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		clip, err := cfg.Timeline.UpdateClip(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.DeleteClip(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		deletedResponse(w)
	}
}

func createTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.NewTrim
		if !decodeJSON(w, r, &req) {
			return
		}
		trim, err := cfg.Timeline.CreateTrim(r.Context(), req)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, trim)
	}
}

func listTrimsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trims, err := cfg.Timeline.ListTrims(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(trims))
	}
}

func deleteTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.DeleteTrim(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		deletedResponse(w)
	}
}

func createTransitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req timeline.NewTransition
		if !decodeJSON(w, r, &req) {
			return
		}
		tr, err := cfg.Timeline.CreateTransition(r.Context(), req)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, tr)
	}
}

func listTransitionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transitions, err := cfg.Timeline.ListTransitions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, orEmpty(transitions))
	}
}

func updateTransitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch timeline.TransitionPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		tr, err := cfg.Timeline.UpdateTransition(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, tr)
	}
}

func deleteTransitionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.DeleteTransition(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeAppError(w, r, cfg.Logger, err)
			return
		}
		deletedResponse(w)
	}
}
