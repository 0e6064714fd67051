package exports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/clock"
	"github.com/framecut/framecut-backend/internal/db"
	"github.com/framecut/framecut-backend/internal/timeline"
)

// Ledger owns export_jobs and export_job_events. It is the only writer of
// either table.
type Ledger struct {
	db     *db.DB
	clock  clock.Clock
	logger *slog.Logger
}

func NewLedger(database *db.DB, clk clock.Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: database, clock: clk, logger: logger}
}

const jobColumns = `id, project_id, preset, status, progress, output_uri, error_message,
	started_at, finished_at, created_at, updated_at`

const eventColumns = `id, export_job_id, event_type, message, progress, output_uri, created_at`

// Create inserts a queued job at 0.00 and its created event atomically.
func (l *Ledger) Create(ctx context.Context, projectID, preset string) (*Job, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, apperr.Validation("project_id is required")
	}
	if preset == "" {
		preset = DefaultPreset
	}

	now := l.clock.Now()
	job := &Job{
		ID:        timeline.NewID(),
		ProjectID: projectID,
		Preset:    preset,
		Status:    StatusQueued,
		Progress:  ProgressZero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("project", projectID)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO export_jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, NULL, ?, ?)
		`, job.ID, job.ProjectID, job.Preset, job.Status, int64(job.Progress),
			db.FormatTime(job.CreatedAt), db.FormatTime(job.UpdatedAt))
		if err != nil {
			return err
		}
		return appendEvent(ctx, tx, job.ID, EventCreated, "Export job created.", job.Progress, nil, now)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("export job created", "job_id", job.ID, "project_id", projectID, "preset", preset)
	return job, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*Job, error) {
	return getJob(ctx, l.db.Conn(), id)
}

func getJob(ctx context.Context, q db.Querier, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("export job", id)
	}
	if err != nil {
		return nil, apperr.Storage("get export job", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var progress int64
	var outputURI, errorMessage, startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.ProjectID, &j.Preset, &j.Status, &progress, &outputURI, &errorMessage,
		&startedAt, &finishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.Progress = Progress(progress)
	if outputURI.Valid {
		j.OutputURI = &outputURI.String
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	j.StartedAt = db.ParseNullTime(startedAt)
	j.FinishedAt = db.ParseNullTime(finishedAt)
	j.CreatedAt = db.ParseTime(createdAt)
	j.UpdatedAt = db.ParseTime(updatedAt)
	return &j, nil
}

// ListByProject returns a project's jobs newest first.
func (l *Ledger) ListByProject(ctx context.Context, projectID string) ([]*Job, error) {
	q := l.db.Conn()
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project", projectID)
	}
	if err != nil {
		return nil, apperr.Storage("lookup project", err)
	}
	return listJobs(ctx, q, `WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`, projectID)
}

// ListByStatus returns jobs in one status, oldest first.
func (l *Ledger) ListByStatus(ctx context.Context, status string) ([]*Job, error) {
	return listJobs(ctx, l.db.Conn(), `WHERE status = ? ORDER BY created_at ASC, rowid ASC`, status)
}

func listJobs(ctx context.Context, q db.Querier, clause string, args ...any) ([]*Job, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+jobColumns+` FROM export_jobs `+clause, args...)
	if err != nil {
		return nil, apperr.Storage("list export jobs", err)
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperr.Storage("scan export job", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, apperr.Storage("list export jobs", rows.Err())
}

// Events returns a job's log ordered by (created_at, id).
func (l *Ledger) Events(ctx context.Context, jobID string) ([]*Event, error) {
	q := l.db.Conn()
	if _, err := getJob(ctx, q, jobID); err != nil {
		return nil, err
	}
	return listEvents(ctx, q, jobID)
}

func listEvents(ctx context.Context, q db.Querier, jobID string) ([]*Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM export_job_events
		WHERE export_job_id = ?
		ORDER BY created_at ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, apperr.Storage("list export events", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		var e Event
		var message, outputURI sql.NullString
		var progress sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ExportJobID, &e.EventType, &message, &progress, &outputURI, &createdAt); err != nil {
			return nil, apperr.Storage("scan export event", err)
		}
		if message.Valid {
			e.Message = &message.String
		}
		if progress.Valid {
			p := Progress(progress.Int64)
			e.Progress = &p
		}
		if outputURI.Valid {
			e.OutputURI = &outputURI.String
		}
		e.CreatedAt = db.ParseTime(createdAt)
		events = append(events, &e)
	}
	return events, apperr.Storage("list export events", rows.Err())
}

func appendEvent(ctx context.Context, tx *sql.Tx, jobID, eventType, message string, progress Progress, outputURI *string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO export_job_events (export_job_id, event_type, message, progress, output_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, jobID, eventType, db.NullString(message), int64(progress), nullPtr(outputURI), db.FormatTime(at))
	return err
}

// change is one state machine step: a mutation of the loaded job plus the
// event that records it.
type change struct {
	from      string
	eventType string
	message   string
	apply     func(j *Job, now time.Time) error
}

// transition loads the job, checks it is in c.from, applies c and writes the
// row and the event in one transaction.
func (l *Ledger) transition(ctx context.Context, id string, c change) (*Job, error) {
	var out *Job
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		j, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.Status != c.from {
			return apperr.Precondition("export job %s is %s, not %s", id, j.Status, c.from)
		}
		if err := applyChange(ctx, tx, j, c, l.clock.Now()); err != nil {
			return err
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyChange(ctx context.Context, tx *sql.Tx, j *Job, c change, now time.Time) error {
	if err := c.apply(j, now); err != nil {
		return err
	}
	j.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, progress = ?, output_uri = ?, error_message = ?,
			started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, j.Status, int64(j.Progress), nullPtr(j.OutputURI), nullPtr(j.ErrorMessage),
		db.NullTime(j.StartedAt), db.NullTime(j.FinishedAt), db.FormatTime(j.UpdatedAt), j.ID, c.from)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return apperr.Precondition("export job %s left %s concurrently", j.ID, c.from)
	}
	var outputURI *string
	if c.eventType == EventCompleted {
		outputURI = j.OutputURI
	}
	return appendEvent(ctx, tx, j.ID, c.eventType, c.message, j.Progress, outputURI, now)
}

// Start moves a queued job to running.
func (l *Ledger) Start(ctx context.Context, id string) (*Job, error) {
	return l.transition(ctx, id, change{
		from:      StatusQueued,
		eventType: EventStarted,
		message:   "Export started.",
		apply: func(j *Job, now time.Time) error {
			j.Status = StatusRunning
			j.StartedAt = &now
			return nil
		},
	})
}

// ReportProgress records progress for a running job. Progress may repeat a
// value but never decrease.
func (l *Ledger) ReportProgress(ctx context.Context, id string, p Progress) (*Job, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return l.transition(ctx, id, change{
		from:      StatusRunning,
		eventType: EventProgress,
		message:   fmt.Sprintf("Progress %s%%", p),
		apply: func(j *Job, now time.Time) error {
			if p < j.Progress {
				return apperr.Precondition("progress %s is below recorded %s for export job %s", p, j.Progress, j.ID)
			}
			j.Progress = p
			return nil
		},
	})
}

// Complete marks a running job succeeded at 100.00 with its artifact URI.
func (l *Ledger) Complete(ctx context.Context, id, outputURI string) (*Job, error) {
	if strings.TrimSpace(outputURI) == "" {
		return nil, apperr.Validation("output_uri is required to complete an export")
	}
	return l.transition(ctx, id, change{
		from:      StatusRunning,
		eventType: EventCompleted,
		message:   "Export completed.",
		apply: func(j *Job, now time.Time) error {
			j.Status = StatusSucceeded
			j.Progress = ProgressComplete
			j.OutputURI = &outputURI
			j.FinishedAt = &now
			return nil
		},
	})
}

// Fail marks a running job failed. Progress stays at its last value.
func (l *Ledger) Fail(ctx context.Context, id, reason string) (*Job, error) {
	return l.transition(ctx, id, failChange(reason))
}

func failChange(reason string) change {
	if strings.TrimSpace(reason) == "" {
		reason = "export failed"
	}
	return change{
		from:      StatusRunning,
		eventType: EventFailed,
		message:   reason,
		apply: func(j *Job, now time.Time) error {
			j.Status = StatusFailed
			j.ErrorMessage = &reason
			j.FinishedAt = &now
			return nil
		},
	}
}

// Cancel marks a running job canceled. Progress stays at its last value.
func (l *Ledger) Cancel(ctx context.Context, id, reason string) (*Job, error) {
	if reason == "" {
		reason = "Export canceled."
	}
	return l.transition(ctx, id, change{
		from:      StatusRunning,
		eventType: EventCanceled,
		message:   reason,
		apply: func(j *Job, now time.Time) error {
			j.Status = StatusCanceled
			j.FinishedAt = &now
			return nil
		},
	})
}

// FailInterrupted fails every running job. It is meant for process start,
// before any worker exists, when a running row can only be left over from a
// process that died mid-export.
func (l *Ledger) FailInterrupted(ctx context.Context, reason string) ([]string, error) {
	var ids []string
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		jobs, err := listJobs(ctx, tx, `WHERE status = ? ORDER BY created_at ASC, rowid ASC`, StatusRunning)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			if err := applyChange(ctx, tx, j, failChange(reason), l.clock.Now()); err != nil {
				return err
			}
			ids = append(ids, j.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		l.logger.Warn("failed interrupted export jobs", "count", len(ids), "reason", reason)
	}
	return ids, nil
}

func nullPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
