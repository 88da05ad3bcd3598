// Package state holds the run-gating state that lives next to the database:
// the last successful update timestamp and the single-run lock.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LastSuccessFile is the name of the file holding the last successful run time
// as Unix epoch seconds.
const LastSuccessFile = "last_success"

// Gate reports whether an update may start at now.
// A zero lastSuccess always passes. Otherwise the run proceeds once at least
// threshold has elapsed since lastSuccess.
func Gate(lastSuccess, now time.Time, threshold time.Duration) bool {
	if lastSuccess.IsZero() {
		return true
	}
	return now.Sub(lastSuccess) >= threshold
}

// Store reads and writes the last-success timestamp in a directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the location of the last-success file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, LastSuccessFile)
}

// LastSuccess returns the stored timestamp, or the zero time when none was recorded.
func (s *Store) LastSuccess() (time.Time, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last success: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last success %q: %w", raw, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// SetLastSuccess records t. The file is replaced atomically so a crash leaves
// either the old or the new value.
func (s *Store) SetLastSuccess(t time.Time) error {
	return writeFileAtomic(s.dir, LastSuccessFile, []byte(strconv.FormatInt(t.Unix(), 10)+"\n"))
}

// writeFileAtomic writes data to dir/name through a temp file and rename.
func writeFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
