package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ndewijer/market-data-store/internal/apperrors"
)

// LockFile is the name of the run lock sentinel.
const LockFile = "update.lock"

// RunLock is a held run lock. The sentinel file contains the owner PID and a
// random token identifying this acquisition.
type RunLock struct {
	path  string
	token string
}

// AcquireLock takes the run lock in dir.
//
// When the sentinel exists and names a live process the result is a
// *apperrors.ConcurrentRunError. A sentinel left by a dead process, or one that
// cannot be parsed, is removed and the acquisition retried.
func AcquireLock(dir string) (*RunLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	path := filepath.Join(dir, LockFile)
	token := uuid.NewString()
	content := []byte(fmt.Sprintf("%d %s\n", os.Getpid(), token))

	for attempt := 0; attempt < 3; attempt++ {
		created, err := createExclusive(dir, path, content)
		if err != nil {
			return nil, err
		}
		if created {
			return &RunLock{path: path, token: token}, nil
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read run lock: %w", err)
		}
		pid, _, err := parseLock(path, data)
		if err == nil && processAlive(pid) {
			return nil, &apperrors.ConcurrentRunError{PID: pid, LockPath: path}
		}
		if err := reclaimStale(dir, path, data); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to acquire run lock %s: contended", path)
}

// createExclusive writes content to a temp file and hard-links it to path, so
// the lock appears with its full content or not at all.
func createExclusive(dir, path string, content []byte) (bool, error) {
	tmp, err := os.CreateTemp(dir, ".lock.*")
	if err != nil {
		return false, fmt.Errorf("failed to create lock temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to write lock temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close lock temp file: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock: %w", err)
	}
	return true, nil
}

// reclaimStale removes the sentinel only if it still holds the stale content.
// The file is first renamed aside, so a concurrent reclaimer cannot delete a
// lock another process linked in after the stale one was read. A sentinel that
// changed in the meantime is linked back into place.
func reclaimStale(dir, path string, stale []byte) error {
	aside := filepath.Join(dir, ".reclaim."+uuid.NewString())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to reclaim stale lock: %w", err)
	}
	defer func() { _ = os.Remove(aside) }()

	current, err := os.ReadFile(aside)
	if err != nil {
		return fmt.Errorf("failed to reclaim stale lock: %w", err)
	}
	if bytes.Equal(current, stale) {
		return nil
	}
	if err := os.Link(aside, path); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to restore run lock: %w", err)
	}
	return nil
}

func readLock(path string) (int, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	return parseLock(path, data)
}

func parseLock(path string, data []byte) (int, string, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("malformed lock file %s", path)
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("malformed lock pid %q: %w", fields[0], err)
	}
	return pid, fields[1], nil
}

// Release removes the sentinel if it still belongs to this lock.
func (l *RunLock) Release() error {
	_, token, err := readLock(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if token != l.token {
		return fmt.Errorf("run lock %s was taken over by another owner", l.path)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Path returns the sentinel location.
func (l *RunLock) Path() string {
	return l.path
}
