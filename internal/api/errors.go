package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/exports"
	"github.com/framecut/framecut-backend/internal/playback"
	"github.com/framecut/framecut-backend/internal/sanitize"
	"github.com/framecut/framecut-backend/internal/upload"
)

const maxJSONBody = 1 << 20

// writeAppError maps a classified error onto its HTTP status and code.
// Unclassified and storage failures are logged and reported without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var dispatchErr *exports.DispatchError
	if errors.As(err, &dispatchErr) {
		logger.Warn("export dispatch failed",
			"job_id", dispatchErr.Job.ID,
			"error", dispatchErr.Err,
			"request_id", requestIDFrom(r.Context()),
		)
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "export job is queued but could not be dispatched; retry POST /api/exports/" + dispatchErr.Job.ID + "/dispatch",
			Code:  CodeDispatchFailed,
			Job:   dispatchErr.Job,
		})
		return
	}

	switch {
	case errors.Is(err, playback.ErrNotFound), errors.Is(err, upload.ErrNotExist):
		WriteError(w, http.StatusNotFound, "file not found", CodeNotFound)
		return
	case errors.Is(err, sanitize.ErrTraversal):
		WriteError(w, http.StatusBadRequest, "invalid file path", CodeValidation)
		return
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", "error", err, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
		WriteError(w, http.StatusInternalServerError, "internal server error", CodeInternal)
		return
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		WriteError(w, http.StatusBadRequest, appErr.Message, CodeValidation)
	case apperr.KindNotFound:
		WriteError(w, http.StatusNotFound, appErr.Message, CodeNotFound)
	case apperr.KindConflict:
		WriteError(w, http.StatusConflict, appErr.Message, CodeConflict)
	case apperr.KindPrecondition:
		WriteError(w, http.StatusConflict, appErr.Message, CodePrecondition)
	default:
		logger.Error("storage error", "error", err, "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
		WriteError(w, http.StatusInternalServerError, "storage error", CodeStorage)
	}
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		WriteError(w, http.StatusBadRequest, msg, CodeValidation)
		return false
	}
	return true
}
