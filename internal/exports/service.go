package exports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/framecut/framecut-backend/internal/apperr"
)

// RestartReason is recorded on jobs found running when the process starts.
const RestartReason = "interrupted by restart"

// DispatchError reports a job that was created but could not be scheduled. The
// job stays queued and may be dispatched again.
type DispatchError struct {
	Job *Job
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("export job %s created but not dispatched: %v", e.Job.ID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Service wires the ledger to the dispatcher for the operations callers use.
type Service struct {
	ledger     *Ledger
	query      *Query
	dispatcher *Dispatcher
	renderers  RendererLookup
	logger     *slog.Logger
}

func NewService(ledger *Ledger, query *Query, dispatcher *Dispatcher, renderers RendererLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, query: query, dispatcher: dispatcher, renderers: renderers, logger: logger}
}

// Create records a queued job and dispatches it. The job is returned even when
// dispatch fails, together with a *DispatchError.
func (s *Service) Create(ctx context.Context, projectID, preset string) (*Job, error) {
	if preset == "" {
		preset = DefaultPreset
	}
	if _, ok := s.renderers.Lookup(preset); !ok {
		return nil, apperr.Validation("unknown export preset %q", preset)
	}

	job, err := s.ledger.Create(ctx, projectID, preset)
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		s.logger.Error("failed to dispatch export job", "job_id", job.ID, "error", err)
		return job, &DispatchError{Job: job, Err: err}
	}
	return job, nil
}

// Dispatch schedules an existing queued job, e.g. after a failed dispatch.
func (s *Service) Dispatch(ctx context.Context, id string) (*Job, error) {
	if err := s.dispatcher.Dispatch(ctx, id); err != nil {
		if errors.Is(err, ErrDispatchUnavailable) {
			job, getErr := s.ledger.Get(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return job, &DispatchError{Job: job, Err: err}
		}
		return nil, err
	}
	return s.ledger.Get(ctx, id)
}

// Cancel asks the active or pending run of a job to stop. The cancellation is
// recorded by the worker, so the returned job may still read running.
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	job, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if IsTerminal(job.Status) {
		return nil, apperr.Precondition("export job %s is already %s", id, job.Status)
	}
	if !s.dispatcher.Cancel(id) {
		return nil, apperr.Precondition("export job %s has no pending or active worker", id)
	}
	s.logger.Info("export cancel requested", "job_id", id)
	return job, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.ledger.Get(ctx, id)
}

func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*Job, error) {
	return s.ledger.ListByProject(ctx, projectID)
}

func (s *Service) Events(ctx context.Context, id string) ([]*Event, error) {
	return s.ledger.Events(ctx, id)
}

func (s *Service) JobWithEvents(ctx context.Context, id string) (*JobWithEvents, error) {
	return s.query.JobWithEvents(ctx, id)
}

// Reconcile fails jobs left running by a previous process. Call it before the
// dispatcher starts.
func (s *Service) Reconcile(ctx context.Context) ([]string, error) {
	return s.ledger.FailInterrupted(ctx, RestartReason)
}

// ResumeQueued dispatches every queued job, oldest first, and returns how many
// were scheduled. It stops at the first full queue.
func (s *Service) ResumeQueued(ctx context.Context) (int, error) {
	jobs, err := s.ledger.ListByStatus(ctx, StatusQueued)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if err := s.dispatcher.Dispatch(ctx, j.ID); err != nil {
			if errors.Is(err, ErrDispatchUnavailable) {
				return n, err
			}
			s.logger.Warn("skipping queued export job", "job_id", j.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("resumed queued export jobs", "count", n)
	}
	return n, nil
}
