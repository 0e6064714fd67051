package exports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/logging"
)

var (
	// ErrCanceled is the cancel cause for a user requested stop.
	ErrCanceled = errors.New("export canceled")
	// ErrShutdown is the cancel cause used when the process is stopping.
	ErrShutdown = errors.New("interrupted by shutdown")

	errTimedOut = errors.New("export timed out")
)

// ProgressFunc records progress for the job being rendered. A non-nil error
// means the run must stop.
type ProgressFunc func(p Progress) error

// Renderer produces the artifact for one job and returns its URI. It must
// report non-decreasing progress and return promptly once ctx is done.
type Renderer interface {
	Render(ctx context.Context, job *Job, report ProgressFunc) (outputURI string, err error)
}

// RendererLookup resolves an export preset to its renderer.
type RendererLookup interface {
	Lookup(preset string) (Renderer, bool)
}

// Worker drives a single job from queued to a terminal status.
type Worker struct {
	ledger    *Ledger
	renderers RendererLookup
	timeout   time.Duration
	logger    *slog.Logger
}

func NewWorker(ledger *Ledger, renderers RendererLookup, timeout time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Worker{ledger: ledger, renderers: renderers, timeout: timeout, logger: logger}
}

// Run executes the job. A job that is not queued yields a precondition error and
// is left untouched. Otherwise exactly one terminal transition is attempted; the
// returned error is non-nil only when that write could not be made.
//
// Cancel ctx with ErrCanceled to cancel the job; any other cancellation fails it.
func (w *Worker) Run(ctx context.Context, jobID string) error {
	// Ledger writes must land even after ctx is canceled so the job never
	// stays running.
	store := context.WithoutCancel(ctx)

	job, err := w.ledger.Start(store, jobID)
	if err != nil {
		return err
	}
	log := logging.WithJobID(w.logger, job.ID).With("preset", job.Preset)
	log.Info("export started")

	renderer, ok := w.renderers.Lookup(job.Preset)
	if !ok {
		return w.finish(store, log, job.ID, outcome{failure: fmt.Sprintf("no renderer for preset %q", job.Preset)})
	}

	runCtx, cancel := context.WithTimeoutCause(ctx, w.timeout, errTimedOut)
	defer cancel()

	report := func(p Progress) error {
		if err := context.Cause(runCtx); err != nil {
			return err
		}
		if _, err := w.ledger.ReportProgress(store, job.ID, p); err != nil {
			return err
		}
		log.Debug("export progress", "progress", p.String())
		return nil
	}

	var uri string
	renderErr := context.Cause(runCtx)
	if renderErr == nil {
		uri, renderErr = w.safeRender(runCtx, log, renderer, job, report)
	}
	return w.finish(store, log, job.ID, w.classify(runCtx, uri, renderErr))
}

type outcome struct {
	outputURI string
	failure   string
	canceled  bool
}

func (w *Worker) classify(runCtx context.Context, uri string, renderErr error) outcome {
	if renderErr == nil && uri != "" {
		return outcome{outputURI: uri}
	}
	if renderErr == nil {
		return outcome{failure: "renderer returned no output"}
	}

	switch cause := context.Cause(runCtx); {
	case errors.Is(cause, ErrCanceled):
		return outcome{canceled: true}
	case errors.Is(cause, errTimedOut):
		return outcome{failure: fmt.Sprintf("export timed out after %s", w.timeout)}
	case errors.Is(cause, ErrShutdown):
		return outcome{failure: ErrShutdown.Error()}
	case cause != nil:
		return outcome{failure: fmt.Sprintf("export aborted: %v", cause)}
	}

	if apperr.Is(renderErr, apperr.KindStorage) {
		return outcome{failure: fmt.Sprintf("storage error: %v", renderErr)}
	}
	return outcome{failure: renderErr.Error()}
}

func (w *Worker) finish(ctx context.Context, log *slog.Logger, jobID string, o outcome) error {
	var err error
	switch {
	case o.canceled:
		_, err = w.ledger.Cancel(ctx, jobID, "")
		if err == nil {
			log.Info("export canceled")
		}
	case o.failure == "":
		_, err = w.ledger.Complete(ctx, jobID, o.outputURI)
		if err == nil {
			log.Info("export completed", "output_uri", o.outputURI)
			return nil
		}
		// The job is still running; record why it could not complete.
		log.Error("failed to complete export", "error", err)
		_, err = w.ledger.Fail(ctx, jobID, fmt.Sprintf("could not record completion: %v", err))
	default:
		_, err = w.ledger.Fail(ctx, jobID, o.failure)
		if err == nil {
			log.Warn("export failed", "reason", o.failure)
		}
	}
	if err != nil {
		log.Error("export job stuck in running state", "error", err)
		return fmt.Errorf("record terminal state for export job %s: %w", jobID, err)
	}
	return nil
}

func (w *Worker) safeRender(ctx context.Context, log *slog.Logger, r Renderer, job *Job, report ProgressFunc) (uri string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("renderer panic", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("renderer panic: %v", rec)
		}
	}()
	return r.Render(ctx, job, report)
}
