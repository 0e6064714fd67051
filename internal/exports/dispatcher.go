package exports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/framecut/framecut-backend/internal/apperr"
)

// ErrDispatchUnavailable wraps every failure to hand a job to a worker.
var ErrDispatchUnavailable = errors.New("export dispatch unavailable")

// Dispatcher hands queued jobs to a fixed pool of worker goroutines. A job id
// is tracked from Dispatch until its run returns, so a second Dispatch for the
// same id is refused while the first is pending or active.
type Dispatcher struct {
	worker  *Worker
	ledger  *Ledger
	workers int
	queue   chan string
	logger  *slog.Logger

	mu   sync.Mutex
	jobs map[string]*dispatched

	base    context.Context
	stop    context.CancelCauseFunc
	wg      sync.WaitGroup
	running atomic.Bool
	active  atomic.Int32
}

type dispatched struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewDispatcher(worker *Worker, ledger *Ledger, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		worker:  worker,
		ledger:  ledger,
		workers: workers,
		queue:   make(chan string, queueSize),
		logger:  logger,
		jobs:    make(map[string]*dispatched),
	}
}

// Start launches the worker pool. Runs are canceled with ErrShutdown when ctx
// is done or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.running.Swap(true) {
		return
	}
	d.base, d.stop = context.WithCancelCause(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-ctx.Done():
			d.stop(ErrShutdown)
		case <-d.base.Done():
		}
	}()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.loop()
	}
	d.logger.Info("export dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Stop cancels in-flight runs and waits for the pool to drain. Jobs still
// waiting in the queue stay queued in the ledger.
func (d *Dispatcher) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.stop(ErrShutdown)
	d.wg.Wait()

	d.mu.Lock()
	for id, j := range d.jobs {
		j.cancel(ErrShutdown)
		delete(d.jobs, id)
	}
	d.mu.Unlock()
	d.logger.Info("export dispatcher stopped")
}

func (d *Dispatcher) IsRunning() bool {
	return d.running.Load()
}

// ActiveCount is the number of runs currently executing.
func (d *Dispatcher) ActiveCount() int {
	return int(d.active.Load())
}

// Dispatch schedules one run for a queued job and returns without waiting.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) error {
	if !d.running.Load() {
		return fmt.Errorf("%w: dispatcher is not running", ErrDispatchUnavailable)
	}

	d.mu.Lock()
	if _, ok := d.jobs[jobID]; ok {
		d.mu.Unlock()
		return apperr.Precondition("export job %s is already dispatched", jobID)
	}
	runCtx, cancel := context.WithCancelCause(d.base)
	d.jobs[jobID] = &dispatched{ctx: runCtx, cancel: cancel}
	d.mu.Unlock()

	// The status is read only once the id is claimed. A previous run releases
	// its id after its terminal write, so a claim that wins against that
	// release still sees the terminal status here.
	job, err := d.ledger.Get(ctx, jobID)
	if err != nil {
		d.release(jobID)
		return err
	}
	if job.Status != StatusQueued {
		d.release(jobID)
		return apperr.Precondition("export job %s is %s, not queued", jobID, job.Status)
	}

	select {
	case d.queue <- jobID:
		d.logger.Debug("export job dispatched", "job_id", jobID)
		return nil
	default:
		d.release(jobID)
		return fmt.Errorf("%w: queue is full (%d pending)", ErrDispatchUnavailable, cap(d.queue))
	}
}

// Cancel asks the run for jobID to stop as canceled. It reports false when
// the job is not pending or active in this dispatcher.
func (d *Dispatcher) Cancel(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[jobID]
	if !ok {
		return false
	}
	j.cancel(ErrCanceled)
	return true
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.base.Done():
			return
		case id := <-d.queue:
			d.run(id)
		}
	}
}

func (d *Dispatcher) run(jobID string) {
	d.mu.Lock()
	j, ok := d.jobs[jobID]
	d.mu.Unlock()
	if !ok {
		return
	}
	defer d.release(jobID)

	// Leave the job queued for the next process rather than starting it
	// only to fail it.
	if d.base.Err() != nil {
		return
	}

	d.active.Add(1)
	defer d.active.Add(-1)

	if err := d.worker.Run(j.ctx, jobID); err != nil {
		if apperr.Is(err, apperr.KindPrecondition) {
			d.logger.Warn("export job skipped", "job_id", jobID, "error", err)
			return
		}
		d.logger.Error("export worker error", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) release(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if j, ok := d.jobs[jobID]; ok {
		j.cancel(nil)
		delete(d.jobs, jobID)
	}
}
