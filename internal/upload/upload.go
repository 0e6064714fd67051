// Package upload stores uploaded media bytes and hands back the URI a
// MediaAsset records as its source.
package upload

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/framecut/framecut-backend/internal/sanitize"
)

// ErrNotOwned is returned when a URI was not produced by the store asked to
// open or delete it.
var ErrNotOwned = errors.New("uri is not managed by this upload store")

// ErrNotExist is returned by Open when the object is gone.
var ErrNotExist = errors.New("uploaded object does not exist")

// Object describes a stored upload.
type Object struct {
	URI         string
	Key         string
	Size        int64
	ContentType string
}

// Store is the Upload collaborator. size may be -1 when the length is not
// known up front.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error)
	Open(ctx context.Context, uri string) (io.ReadSeekCloser, *Object, error)
	Delete(ctx context.Context, uri string) error
	Owns(uri string) bool
}

// Key builds "<projectID>/<uuid>_<filename>" with the filename reduced to a
// safe storage element.
func Key(projectID, filename string) string {
	name := sanitize.Filename(filename, "upload.bin")
	return path.Join(sanitize.Filename(projectID, "project"), uuid.New().String()+"_"+name)
}

// ValidKey rejects empty keys, absolute keys and any ".." element.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Locator is implemented by stores that can hand an external tool a path or
// URL it can read the object from directly.
type Locator interface {
	Locate(ctx context.Context, uri string) (string, error)
}
