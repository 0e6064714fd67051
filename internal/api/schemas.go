package api

import (
	"github.com/framecut/framecut-backend/internal/exports"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodePrecondition   = "PRECONDITION_FAILED"
	CodeStorage        = "STORAGE_ERROR"
	CodeDispatchFailed = "DISPATCH_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Job is set on DISPATCH_FAILED: the job exists and can be dispatched again.
	Job *exports.Job `json:"job,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status            string   `json:"status"`
	Message           string   `json:"message"`
	Version           string   `json:"version"`
	UptimeS           int64    `json:"uptime_s"`
	DispatcherRunning bool     `json:"dispatcher_running"`
	ActiveExports     int      `json:"active_exports"`
	Presets           []string `json:"presets"`
	UploadBackend     string   `json:"upload_backend"`
	ProbeEnabled      bool     `json:"probe_enabled"`
}

type CreateExportRequest struct {
	ProjectID string `json:"project_id"`
	Preset    string `json:"preset"`
}

const websocketNote = "No WebSocket endpoints. Poll /api/exports/{job_id} or /api/exports/{job_id}/events for status."

// orEmpty keeps list endpoints from encoding null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
