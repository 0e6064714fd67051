package render

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecut/framecut-backend/internal/clock"
	"github.com/framecut/framecut-backend/internal/db"
	"github.com/framecut/framecut-backend/internal/exports"
	"github.com/framecut/framecut-backend/internal/timeline"
)

type testEnv struct {
	root    string
	ledger  *exports.Ledger
	query   *exports.Query
	store   *timeline.Store
	project *timeline.Project
	logger  *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	database, err := db.New(filepath.Join(root, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.New()
	store := timeline.NewStore(database, clk, logger)
	width, height, fps := 1920, 1080, 30.0
	project, err := store.CreateProject(context.Background(), timeline.NewProject{
		Name: "Demo", Width: &width, Height: &height, FPS: &fps,
	})
	require.NoError(t, err)

	return &testEnv{
		root:    root,
		ledger:  exports.NewLedger(database, clk, logger),
		query:   exports.NewQuery(database),
		store:   store,
		project: project,
		logger:  logger,
	}
}

func TestSimulated_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := NewRegistry()
	reg.Register(exports.DefaultPreset, NewSimulated(env.root, 0))
	worker := exports.NewWorker(env.ledger, reg, time.Minute, env.logger)
	dispatcher := exports.NewDispatcher(worker, env.ledger, 1, 8, env.logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	svc := exports.NewService(env.ledger, env.query, dispatcher, reg, env.logger)

	job, err := svc.Create(ctx, env.project.ID, "mp4_h264")
	require.NoError(t, err)

	var snap *exports.JobWithEvents
	require.Eventually(t, func() bool {
		snap, err = svc.JobWithEvents(ctx, job.ID)
		return err == nil && exports.IsTerminal(snap.Status)
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, exports.StatusSucceeded, snap.Status)
	require.Len(t, snap.Events, 7)
	want := []exports.Progress{0, 0, 1000, 2500, 5000, 7500, 10000}
	for i, e := range snap.Events {
		require.NotNil(t, e.Progress)
		assert.Equal(t, want[i], *e.Progress, "event %d (%s)", i, e.EventType)
	}
	assert.Equal(t, "exports/"+job.ID+".mp4", *snap.OutputURI)

	_, err = os.Stat(filepath.Join(env.root, "exports", job.ID+".mp4"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.root, "exports", job.ID+".mp4.part"))
	assert.True(t, os.IsNotExist(err))
}

func TestSimulated_StopsOnCancel(t *testing.T) {
	r := NewSimulated(t.TempDir(), time.Hour)
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(exports.ErrCanceled)

	_, err := r.Render(ctx, &exports.Job{ID: "j", Preset: "mp4_h264"}, func(exports.Progress) error { return nil })
	assert.ErrorIs(t, err, exports.ErrCanceled)
}

func TestContainer(t *testing.T) {
	tests := map[string]string{
		"mp4_h264":   "mp4",
		"MOV_prores": "mov",
		"webm":       "webm",
		"":           "bin",
	}
	for preset, want := range tests {
		assert.Equal(t, want, Container(preset), preset)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("MP4_H264", NewSimulated("", 0))
	reg.Register("edl", NewEDL("", nil))

	_, ok := reg.Lookup("mp4_h264")
	assert.True(t, ok)
	_, ok = reg.Lookup("gif")
	assert.False(t, ok)
	assert.Equal(t, []string{"edl", "mp4_h264"}, reg.Presets())
}
