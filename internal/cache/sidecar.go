package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/awase/internal/m2"
)

// SidecarStore keeps one edit-annotation file per system in a directory,
// named <system>.m2. Keys are system names, not content hashes: an existing
// sidecar is trusted without re-validation against the current system-output
// file, so after editing inputs the stale sidecar must be deleted (manually
// or by the watcher). Writes go through a temp file and rename, so a
// partially written sidecar is never visible.
type SidecarStore struct {
	dir string
}

// NewSidecarStore creates a store over dir, creating it if needed.
func NewSidecarStore(dir string) (*SidecarStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sidecar directory: %w", err)
	}
	return &SidecarStore{dir: dir}, nil
}

// Key is the system name; the texts are ignored.
func (s *SidecarStore) Key(system string, source, hypothesis []string) string {
	return system
}

// Path returns the sidecar path for a key.
func (s *SidecarStore) Path(key string) string {
	return filepath.Join(s.dir, key+".m2")
}

// Get parses the sidecar for key. A missing file is a miss; a malformed file
// is an error, which callers treat as a miss and regenerate.
func (s *SidecarStore) Get(ctx context.Context, key string) ([]m2.Entry, bool, error) {
	entries, err := m2.ParseFile(s.Path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Put writes the sidecar atomically.
func (s *SidecarStore) Put(ctx context.Context, key string, entries []m2.Entry) error {
	return m2.WriteFile(s.Path(key), entries)
}

// Delete removes the sidecar for key; missing files are not an error.
func (s *SidecarStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.Path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close is a no-op.
func (s *SidecarStore) Close() error {
	return nil
}
