package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/framecut/framecut-backend/internal/sanitize"
)

// LocalPrefix starts every URI produced by LocalStore.
const LocalPrefix = "uploads/"

// LocalStore writes uploads beneath a directory on local disk.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create upload dir: %w", err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

func (s *LocalStore) Owns(uri string) bool {
	return strings.HasPrefix(uri, LocalPrefix)
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("invalid upload key %q", key)
	}
	dest, err := sanitize.Join(s.root, key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*.part")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if size >= 0 && written != size {
		cleanup()
		return nil, fmt.Errorf("upload truncated: got %d of %d bytes", written, size)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("finalize upload: %w", err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	s.logger.Info("upload stored",
		"backend", "local",
		"key", key,
		"size", humanize.Bytes(uint64(written)),
	)
	return &Object{URI: LocalPrefix + key, Key: key, Size: written, ContentType: contentType}, nil
}

func (s *LocalStore) Open(ctx context.Context, uri string) (io.ReadSeekCloser, *Object, error) {
	full, key, err := s.resolve(uri)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotExist
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotExist
	}
	return f, &Object{
		URI:         uri,
		Key:         key,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(path.Ext(key)),
	}, nil
}

func (s *LocalStore) Delete(ctx context.Context, uri string) error {
	full, _, err := s.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) resolve(uri string) (full, key string, err error) {
	if !s.Owns(uri) {
		return "", "", ErrNotOwned
	}
	key = strings.TrimPrefix(uri, LocalPrefix)
	if !ValidKey(key) {
		return "", "", sanitize.ErrTraversal
	}
	full, err = sanitize.Join(s.root, key)
	return full, key, err
}

// contextReader aborts a long copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Locate returns the absolute file path behind uri.
func (s *LocalStore) Locate(ctx context.Context, uri string) (string, error) {
	full, _, err := s.resolve(uri)
	return full, err
}
