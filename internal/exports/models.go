// Package exports holds the export job ledger, the worker that drives a job
// through its lifecycle and the dispatcher that schedules workers.
//
// A job moves queued -> running -> succeeded|failed|canceled. Every status
// change and every progress report is written together with a matching event
// in one transaction, so the job row can be rebuilt by replaying its events.
package exports

import "time"

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"

	EventCreated   = "created"
	EventQueued    = "queued"
	EventStarted   = "started"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCanceled  = "canceled"

	DefaultPreset = "mp4_h264"
)

func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

type Job struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Preset       string     `json:"preset"`
	Status       string     `json:"status"`
	Progress     Progress   `json:"progress"`
	OutputURI    *string    `json:"output_uri"`
	ErrorMessage *string    `json:"error_message"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Event struct {
	ID          int64     `json:"id"`
	ExportJobID string    `json:"export_job_id"`
	EventType   string    `json:"event_type"`
	Message     *string   `json:"message"`
	Progress    *Progress `json:"progress"`
	OutputURI   *string   `json:"output_uri,omitempty"` // completed events only
	CreatedAt   time.Time `json:"created_at"`
}

// JobWithEvents is a job and its event log read at one point in time.
type JobWithEvents struct {
	*Job
	Events []*Event `json:"events"`
}
