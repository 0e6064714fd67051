package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSONWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Level: "info", Format: "json", Stdout: &buf})
	defer closer.Close()

	log := WithJobID(WithComponent(logger, "worker"), "job-1")
	log.Info("export started", "preset", "edl")
	log.Debug("hidden at info")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "export started", rec["msg"])
	assert.Equal(t, "worker", rec["component"])
	assert.Equal(t, "job-1", rec["job_id"])
	assert.Equal(t, "edl", rec["preset"])
}

func TestNew_AutoFormatOnBufferIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Options{Stdout: &buf})
	logger.Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), buf.String())
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Options{Format: "text", Stdout: &buf})
	WithProjectID(logger, "p1").Warn("slow")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "project_id=p1")
}

func TestNew_FileTee(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "framecutd.log")

	var buf bytes.Buffer
	logger, closer := New(Options{Format: "text", Stdout: &buf, File: path, MaxSizeMB: 1})
	WithRequestID(logger, "req-9").Info("request handled")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "request_id=req-9")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec), "file output is JSON")
	assert.Equal(t, "req-9", rec["request_id"])
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, "~/media/clip.mp4", SanitizePath(filepath.Join(home, "media", "clip.mp4")))
	assert.Equal(t, "/srv/clip.mp4", SanitizePath("/srv/clip.mp4"))
}
