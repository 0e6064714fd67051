package exports

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecut/framecut-backend/internal/apperr"
	"github.com/framecut/framecut-backend/internal/clock"
	"github.com/framecut/framecut-backend/internal/db"
	"github.com/framecut/framecut-backend/internal/timeline"
)

type testEnv struct {
	db      *db.DB
	ledger  *Ledger
	query   *Query
	store   *timeline.Store
	project *timeline.Project
	logger  *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.New()
	store := timeline.NewStore(database, clk, logger)
	project, err := store.CreateProject(context.Background(), timeline.NewProject{Name: "Demo"})
	require.NoError(t, err)

	return &testEnv{
		db:      database,
		ledger:  NewLedger(database, clk, logger),
		query:   NewQuery(database),
		store:   store,
		project: project,
		logger:  logger,
	}
}

func (e *testEnv) createJob(t *testing.T) *Job {
	t.Helper()
	job, err := e.ledger.Create(context.Background(), e.project.ID, "")
	require.NoError(t, err)
	return job
}

func (e *testEnv) runningJob(t *testing.T) *Job {
	t.Helper()
	job := e.createJob(t)
	job, err := e.ledger.Start(context.Background(), job.ID)
	require.NoError(t, err)
	return job
}

func eventTypes(events []*Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func eventProgress(events []*Event) []Progress {
	out := make([]Progress, len(events))
	for i, e := range events {
		if e.Progress != nil {
			out[i] = *e.Progress
		}
	}
	return out
}

// assertWellFormed checks the log is created, queued?, started, progress*,
// terminal? with non-decreasing progress and a terminal event only at the end.
func assertWellFormed(t *testing.T, events []*Event) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, EventCreated, events[0].EventType)

	var last Progress
	for i, e := range events {
		if e.Progress != nil {
			assert.GreaterOrEqual(t, *e.Progress, last, "progress regressed at event %d", i)
			last = *e.Progress
		}
		switch e.EventType {
		case EventCompleted, EventFailed, EventCanceled:
			assert.Equal(t, len(events)-1, i, "terminal event %s is not last", e.EventType)
		case EventStarted:
			assert.LessOrEqual(t, i, 2, "started appears late")
		}
		if i > 0 {
			assert.False(t, e.CreatedAt.Before(events[i-1].CreatedAt), "events out of time order")
			assert.Greater(t, e.ID, events[i-1].ID)
		}
	}
}

// replay folds an event log into the job it describes. Identity fields that
// never change after creation are taken from base.
func replay(base *Job, events []*Event) *Job {
	j := &Job{ID: base.ID, ProjectID: base.ProjectID, Preset: base.Preset}
	for _, e := range events {
		at := e.CreatedAt
		switch e.EventType {
		case EventCreated:
			j.Status = StatusQueued
			j.CreatedAt = at
		case EventStarted:
			j.Status = StatusRunning
			j.StartedAt = &at
		case EventCompleted:
			j.Status = StatusSucceeded
			j.OutputURI = e.OutputURI
			j.FinishedAt = &at
		case EventFailed:
			j.Status = StatusFailed
			j.ErrorMessage = e.Message
			j.FinishedAt = &at
		case EventCanceled:
			j.Status = StatusCanceled
			j.FinishedAt = &at
		}
		if e.Progress != nil {
			j.Progress = *e.Progress
		}
		j.UpdatedAt = at
	}
	return j
}

// assertReplays checks the stored row equals the replay of its event log.
func (e *testEnv) assertReplays(t *testing.T, id string) *Job {
	t.Helper()
	snap, err := e.query.JobWithEvents(context.Background(), id)
	require.NoError(t, err)
	assertWellFormed(t, snap.Events)
	assert.Equal(t, snap.Job, replay(snap.Job, snap.Events))
	return snap.Job
}

func TestLedger_CreateAppendsCreatedEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, ProgressZero, job.Progress)
	assert.Equal(t, DefaultPreset, job.Preset)
	assert.Nil(t, job.StartedAt)

	events, err := env.ledger.Events(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCreated, events[0].EventType)
	require.NotNil(t, events[0].Progress)
	assert.Equal(t, ProgressZero, *events[0].Progress)
}

func TestLedger_CreateMissingProject(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.Create(context.Background(), "missing", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "err = %v", err)

	var n int
	require.NoError(t, env.db.Conn().QueryRow("SELECT COUNT(*) FROM export_job_events").Scan(&n))
	assert.Zero(t, n)
}

func TestLedger_StartRequiresQueued(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.runningJob(t)

	assert.Equal(t, StatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	_, err := env.ledger.Start(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "err = %v", err)

	_, err = env.ledger.Start(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "err = %v", err)
}

func TestLedger_ProgressMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.runningJob(t)

	_, err := env.ledger.ReportProgress(ctx, job.ID, Percent(40))
	require.NoError(t, err)
	_, err = env.ledger.ReportProgress(ctx, job.ID, Percent(40))
	require.NoError(t, err, "repeating a value is allowed")

	_, err = env.ledger.ReportProgress(ctx, job.ID, Percent(30))
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "regress: %v", err)
	_, err = env.ledger.ReportProgress(ctx, job.ID, Progress(10001))
	assert.True(t, apperr.Is(err, apperr.KindValidation), "range: %v", err)

	got, err := env.ledger.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, Percent(40), got.Progress)

	events, err := env.ledger.Events(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{EventCreated, EventStarted, EventProgress, EventProgress}, eventTypes(events))
	assert.Equal(t, got.Progress, *events[len(events)-1].Progress, "row and latest event diverged")
}

func TestLedger_ProgressRequiresRunning(t *testing.T) {
	env := newTestEnv(t)
	job := env.createJob(t)

	_, err := env.ledger.ReportProgress(context.Background(), job.ID, Percent(10))
	assert.True(t, apperr.Is(err, apperr.KindPrecondition), "err = %v", err)
}

func TestLedger_TerminalStatesAreFinal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.runningJob(t)

	done, err := env.ledger.Complete(ctx, job.ID, "exports/"+job.ID+".mp4")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Equal(t, ProgressComplete, done.Progress)
	require.NotNil(t, done.FinishedAt)
	assert.False(t, done.FinishedAt.Before(*done.StartedAt))

	_, err = env.ledger.Fail(ctx, job.ID, "late")
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))
	_, err = env.ledger.Cancel(ctx, job.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))
	_, err = env.ledger.ReportProgress(ctx, job.ID, ProgressComplete)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))
	_, err = env.ledger.Start(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))

	after, err := env.ledger.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, done.UpdatedAt.Equal(after.UpdatedAt), "terminal job was modified")
}

func TestLedger_FailKeepsProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.runningJob(t)

	_, err := env.ledger.ReportProgress(ctx, job.ID, Percent(25))
	require.NoError(t, err)
	failed, err := env.ledger.Fail(ctx, job.ID, "encoder crashed")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, Percent(25), failed.Progress)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "encoder crashed", *failed.ErrorMessage)
	assert.Nil(t, failed.OutputURI)

	events, err := env.ledger.Events(ctx, job.ID)
	require.NoError(t, err)
	assertWellFormed(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].EventType)
}

func TestLedger_CancelQueuedRefused(t *testing.T) {
	env := newTestEnv(t)
	job := env.createJob(t)

	_, err := env.ledger.Cancel(context.Background(), job.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindPrecondition))
}

func TestLedger_FailInterrupted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	running := env.runningJob(t)
	queued := env.createJob(t)

	ids, err := env.ledger.FailInterrupted(ctx, RestartReason)
	require.NoError(t, err)
	assert.Equal(t, []string{running.ID}, ids)

	got, err := env.ledger.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, RestartReason, *got.ErrorMessage)

	still, err := env.ledger.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, still.Status)
}

func TestLedger_ListByProjectNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createJob(t)
	second := env.createJob(t)

	jobs, err := env.ledger.ListByProject(ctx, env.project.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	_, err = env.ledger.ListByProject(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestQuery_JobWithEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.runningJob(t)
	_, err := env.ledger.ReportProgress(ctx, job.ID, Percent(50))
	require.NoError(t, err)

	snap, err := env.query.JobWithEvents(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, snap.ID)
	assert.Equal(t, Percent(50), snap.Progress)
	assert.Equal(t, []string{EventCreated, EventStarted, EventProgress}, eventTypes(snap.Events))

	_, err = env.query.JobWithEvents(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteProjectRemovesJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.createJob(t)

	require.NoError(t, env.store.DeleteProject(ctx, env.project.ID))
	_, err := env.ledger.Get(ctx, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestLedger_EventsReplayToRow(t *testing.T) {
	tests := []struct {
		name       string
		drive      func(t *testing.T, env *testEnv, id string)
		wantStatus string
	}{
		{"queued", func(t *testing.T, env *testEnv, id string) {}, StatusQueued},
		{"succeeded", func(t *testing.T, env *testEnv, id string) {
			ctx := context.Background()
			_, err := env.ledger.Start(ctx, id)
			require.NoError(t, err)
			_, err = env.ledger.ReportProgress(ctx, id, Percent(40))
			require.NoError(t, err)
			_, err = env.ledger.Complete(ctx, id, "exports/"+id+".mp4")
			require.NoError(t, err)
		}, StatusSucceeded},
		{"failed", func(t *testing.T, env *testEnv, id string) {
			ctx := context.Background()
			_, err := env.ledger.Start(ctx, id)
			require.NoError(t, err)
			_, err = env.ledger.ReportProgress(ctx, id, Percent(25))
			require.NoError(t, err)
			_, err = env.ledger.Fail(ctx, id, "encoder crashed")
			require.NoError(t, err)
		}, StatusFailed},
		{"canceled", func(t *testing.T, env *testEnv, id string) {
			ctx := context.Background()
			_, err := env.ledger.Start(ctx, id)
			require.NoError(t, err)
			_, err = env.ledger.ReportProgress(ctx, id, Percent(10))
			require.NoError(t, err)
			_, err = env.ledger.Cancel(ctx, id, "")
			require.NoError(t, err)
		}, StatusCanceled},
		{"interrupted by restart", func(t *testing.T, env *testEnv, id string) {
			ctx := context.Background()
			_, err := env.ledger.Start(ctx, id)
			require.NoError(t, err)
			_, err = env.ledger.FailInterrupted(ctx, RestartReason)
			require.NoError(t, err)
		}, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			job := env.createJob(t)
			tt.drive(t, env, job.ID)

			got := env.assertReplays(t, job.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

func TestLedger_CompletedEventCarriesOutputURI(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.runningJob(t)
	uri := "exports/" + job.ID + ".mp4"

	_, err := env.ledger.Complete(ctx, job.ID, uri)
	require.NoError(t, err)

	events, err := env.ledger.Events(ctx, job.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, EventCompleted, last.EventType)
	require.NotNil(t, last.OutputURI)
	assert.Equal(t, uri, *last.OutputURI)
	for _, e := range events[:len(events)-1] {
		assert.Nil(t, e.OutputURI, "%s event has an output uri", e.EventType)
	}
}
