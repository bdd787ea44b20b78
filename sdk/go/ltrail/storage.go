package ltrail

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore writes trace snapshots as JSON files, one per Complete call.
// Useful for offline runs or as a backup when the server is unreachable.
type FileStore struct {
	dir string
}

// NewFileStore creates the snapshot directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Path: dir, Err: err}
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the trace to trace_<id>_<unix>.json in the store directory.
func (f *FileStore) Save(trace *Trace) error {
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return &StorageError{Path: f.dir, Err: fmt.Errorf("marshal trace: %w", err)}
	}

	name := fmt.Sprintf("trace_%s_%d.json", trace.TraceID, time.Now().Unix())
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &StorageError{Path: path, Err: err}
	}
	return nil
}

// Load reads a previously saved snapshot file.
func (f *FileStore) Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Path: path, Err: err}
	}
	var trace Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, &StorageError{Path: path, Err: fmt.Errorf("decode trace: %w", err)}
	}
	return &trace, nil
}

// List returns the paths of all snapshots in the store, oldest first.
func (f *FileStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "trace_*.json"))
	if err != nil {
		return nil, &StorageError{Path: f.dir, Err: err}
	}
	return matches, nil
}
