package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process already owns the data directory.
var ErrLocked = errors.New("another framecutd instance is using this data directory")

// Lock takes an exclusive advisory lock next to the database so only one
// process dispatches export workers against it.
func Lock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	lock := flock.New(filepath.Join(dataDir, "framecutd.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}
