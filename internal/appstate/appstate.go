// Package appstate reads and writes the local application state document.
package appstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

// DefaultFile is the state file name used when no path is given.
const DefaultFile = "taskfuchs-state.json"

// Load reads the state at path. A missing file yields an empty state.
func Load(path string) (*models.AppState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.AppState{}, nil
		}
		return nil, err
	}

	var state models.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &state, nil
}

// Save writes the state using atomic write (temp file + rename)
func Save(path string, state *models.AppState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// Update loads the state, applies fn and saves the result while holding an
// exclusive lock. Nothing is written when fn returns an error.
func Update(path string, fn func(*models.AppState) error) error {
	return withLock(path, func() error {
		state, err := Load(path)
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return Save(path, state)
	})
}

// withLock serializes writers of path using flock on a sibling lock file
func withLock(path string, fn func() error) error {
	lockPath := path + ".lock"

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return err
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}
