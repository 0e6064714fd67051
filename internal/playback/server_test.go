package playback

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecut/framecut-backend/internal/sanitize"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "exports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "exports", "job.bin"), []byte("0123456789"), 0o644))
	return NewServer(root, slog.New(slog.NewTextHandler(io.Discard, nil))), root
}

func TestServeFile_Full(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/file", nil)

	require.NoError(t, s.ServeFile(rec, req, "exports/job.bin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "job.bin")
}

func TestServeFile_Range(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/file", nil)
	req.Header.Set("Range", "bytes=2-5")

	require.NoError(t, s.ServeFile(rec, req, "exports/job.bin"))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/file", nil)
	req.Header.Set("Range", "bytes=50-")

	require.NoError(t, s.ServeFile(rec, req, "exports/job.bin"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
}

func TestServeFile_MalformedRangeSendsFullBody(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/file", nil)
	req.Header.Set("Range", "frames=1-2")

	require.NoError(t, s.ServeFile(rec, req, "exports/job.bin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestServeFile_Head(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/file", nil)

	require.NoError(t, s.ServeFile(rec, req, "exports/job.bin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
}

func TestServeFile_MissingAndTraversal(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/file", nil)

	assert.ErrorIs(t, s.ServeFile(httptest.NewRecorder(), req, "exports/missing.mp4"), ErrNotFound)
	assert.ErrorIs(t, s.ServeFile(httptest.NewRecorder(), req, "exports"), ErrNotFound)
	assert.ErrorIs(t, s.ServeFile(httptest.NewRecorder(), req, "../etc/passwd"), sanitize.ErrTraversal)
}

func TestServe_ExplicitContentType(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/file", nil)
	req.Header.Set("Range", "bytes=-3")

	body := strings.NewReader("abcdef")
	require.NoError(t, s.Serve(rec, req, "clip.mp4", 6, "video/mp4", body))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "def", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
}
