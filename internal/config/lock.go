package config

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockDataDir takes an exclusive advisory lock on <dataDir>/.lock,
// refusing to start a second server process against a data directory
// another process already owns. The returned flock must be
// held for the server's entire lifetime; unlocking it releases the lock.
func LockDataDir(dataDir string) (*flock.Flock, error) {
	lockPath := filepath.Join(dataDir, ".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("config: lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("config: data directory %s is already locked by another process", dataDir)
	}
	return fl, nil
}
