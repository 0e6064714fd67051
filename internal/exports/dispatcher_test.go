package exports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecut/framecut-backend/internal/apperr"
)

func (e *testEnv) dispatcher(t *testing.T, r Renderer, workers, queue int) *Dispatcher {
	t.Helper()
	d := NewDispatcher(e.worker(r, time.Minute), e.ledger, workers, queue, e.logger)
	d.Start(context.Background())
	t.Cleanup(d.Stop)
	return d
}

func (e *testEnv) waitStatus(t *testing.T, id, status string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		j, err := e.ledger.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestDispatcher_DoubleDispatchRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := &scriptRenderer{steps: schedule, block: make(chan struct{}), started: make(chan string, 1)}
	d := env.dispatcher(t, r, 2, 4)
	job := env.createJob(t)

	require.NoError(t, d.Dispatch(ctx, job.ID))
	err := d.Dispatch(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "pending: %v", err)

	<-r.started
	err = d.Dispatch(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "running: %v", err)

	close(r.block)
	env.waitStatus(t, job.ID, StatusSucceeded)

	err = d.Dispatch(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "terminal: %v", err)

	events, err := env.ledger.Events(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, events, 7)
}

func TestDispatcher_Cancel(t *testing.T) {
	env := newTestEnv(t)
	r := &scriptRenderer{block: make(chan struct{}), started: make(chan string, 1)}
	d := env.dispatcher(t, r, 1, 1)
	job := env.createJob(t)

	require.NoError(t, d.Dispatch(context.Background(), job.ID))
	<-r.started
	assert.True(t, d.Cancel(job.ID))

	got := env.waitStatus(t, job.ID, StatusCanceled)
	assert.Nil(t, got.ErrorMessage)
	require.Eventually(t, func() bool { return !d.Cancel(job.ID) }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_QueueFull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := &scriptRenderer{block: make(chan struct{}), started: make(chan string, 3)}
	d := env.dispatcher(t, r, 1, 1)

	a, b, c := env.createJob(t), env.createJob(t), env.createJob(t)
	require.NoError(t, d.Dispatch(ctx, a.ID))
	<-r.started
	require.NoError(t, d.Dispatch(ctx, b.ID))

	err := d.Dispatch(ctx, c.ID)
	assert.True(t, errors.Is(err, ErrDispatchUnavailable), "err = %v", err)

	got, err := env.ledger.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)

	close(r.block)
	env.waitStatus(t, a.ID, StatusSucceeded)
	env.waitStatus(t, b.ID, StatusSucceeded)
	require.NoError(t, d.Dispatch(ctx, c.ID), "slot frees once the queue drains")
	env.waitStatus(t, c.ID, StatusSucceeded)
}

func TestDispatcher_StopFailsActiveRuns(t *testing.T) {
	env := newTestEnv(t)
	r := &scriptRenderer{block: make(chan struct{}), started: make(chan string, 1)}
	d := NewDispatcher(env.worker(r, time.Minute), env.ledger, 1, 1, env.logger)
	d.Start(context.Background())
	job := env.createJob(t)

	require.NoError(t, d.Dispatch(context.Background(), job.ID))
	<-r.started
	d.Stop()

	got, err := env.ledger.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, ErrShutdown.Error(), *got.ErrorMessage)

	err = d.Dispatch(context.Background(), env.createJob(t).ID)
	assert.True(t, errors.Is(err, ErrDispatchUnavailable))
}

func TestDispatcher_NotFound(t *testing.T) {
	env := newTestEnv(t)
	d := env.dispatcher(t, &scriptRenderer{}, 1, 1)

	err := d.Dispatch(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDispatcher_ConcurrentDispatchRunsOnce(t *testing.T) {
	const jobCount, callers = 20, 8
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.dispatcher(t, &scriptRenderer{steps: schedule}, 4, 64)

	jobs := make([]*Job, jobCount)
	for i := range jobs {
		jobs[i] = env.createJob(t)
	}

	var accepted [jobCount]atomic.Int32
	var unexpected atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i, job := range jobs {
				err := d.Dispatch(ctx, job.ID)
				switch {
				case err == nil:
					accepted[i].Add(1)
				case !apperr.Is(err, apperr.KindPrecondition):
					unexpected.Add(1)
				}
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Zero(t, unexpected.Load())
	for i, job := range jobs {
		assert.Equal(t, int32(1), accepted[i].Load(), "job %d accepted %d dispatches", i, accepted[i].Load())
		env.waitStatus(t, job.ID, StatusSucceeded)

		events, err := env.ledger.Events(ctx, job.ID)
		require.NoError(t, err)
		started := 0
		for _, e := range events {
			if e.EventType == EventStarted {
				started++
			}
		}
		assert.Equal(t, 1, started, "job %d started %d times", i, started)
	}
}

func TestDispatcher_RefusedClaimIsReleased(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.dispatcher(t, &scriptRenderer{steps: schedule}, 1, 1)
	job := env.runningJob(t)

	err := d.Dispatch(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "err = %v", err)
	assert.False(t, d.Cancel(job.ID), "refused dispatch left the job claimed")

	err = d.Dispatch(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.False(t, d.Cancel("missing"))
}

func TestDispatcher_RedispatchAfterRunIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.dispatcher(t, &scriptRenderer{steps: schedule}, 2, 8)

	for range 10 {
		job := env.createJob(t)
		require.NoError(t, d.Dispatch(ctx, job.ID))
		for {
			err := d.Dispatch(ctx, job.ID)
			require.Error(t, err, "a second dispatch was accepted for %s", job.ID)
			require.True(t, apperr.Is(err, apperr.KindPrecondition), "err = %v", err)
			got, err := env.ledger.Get(ctx, job.ID)
			require.NoError(t, err)
			if IsTerminal(got.Status) && !d.Cancel(job.ID) {
				break
			}
		}
	}
}
