// Package playback streams export artifacts and uploaded media with byte-range
// support.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/framecut/framecut-backend/internal/sanitize"
)

// ErrNotFound is returned before any bytes are written when the file is
// missing, so callers can still write their own error body.
var ErrNotFound = errors.New("file not found")

// Server resolves relative artifact paths against a data directory.
type Server struct {
	root   string
	logger *slog.Logger
}

func NewServer(root string, logger *slog.Logger) *Server {
	return &Server{root: root, logger: logger}
}

// ServeFile streams root/rel. rel must stay beneath root.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, rel string) error {
	full, err := sanitize.Join(s.root, rel)
	if err != nil {
		return err
	}
	file, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		return ErrNotFound
	}
	return s.Serve(w, r, filepath.Base(full), stat.Size(), "", file)
}

// Serve answers r from body, honouring a single Range. An empty contentType is
// derived from name.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, name string, size int64, contentType string, body io.ReadSeeker) error {
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the full body is sent.
		rng = nil
	case err != nil:
		return err
	}

	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		if _, err := io.Copy(w, body); err != nil {
			s.logger.Debug("playback copy aborted", "name", name, "error", err)
		}
		return nil
	}

	if _, err := body.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	h.Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.CopyN(w, body, rng.Length()); err != nil {
		s.logger.Debug("playback range copy aborted", "name", name, "error", err)
	}
	return nil
}
