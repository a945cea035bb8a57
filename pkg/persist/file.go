package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"net/url"
	"path/filepath"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

// FileStore keeps one JSON document per term in a directory.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FileStore{}, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return FileStore{Dir: dir}, nil
}

// path escapes the term so distinct terms never share a file.
func (f FileStore) path(term string) string {
	return filepath.Join(f.Dir, "snapshot_"+url.QueryEscape(term)+".json")
}

func (f FileStore) LoadSnapshot(_ context.Context, term string) (*roster.Snapshot, error) {
	data, err := os.ReadFile(f.path(term))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot roster.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", f.path(term), err)
	}
	if snapshot.Term != term {
		return nil, fmt.Errorf("snapshot %s belongs to term %q, not %q", f.path(term), snapshot.Term, term)
	}
	if snapshot.Courses == nil {
		snapshot.Courses = make(map[string]roster.Roster)
	}
	return &snapshot, nil
}

// SaveSnapshot writes to a temporary file and renames it over the previous
// snapshot, so a failed save leaves the old file readable.
func (f FileStore) SaveSnapshot(_ context.Context, snapshot roster.Snapshot) error {
	tmp, err := os.CreateTemp(f.Dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(snapshot.Term)); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
