// Package history persists the ordered scan history and the cached
// most-recent product across restarts. Implementations can be a local
// JSON file, SQLite or Postgres.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pantryscan/scan-service/internal/product"
)

// FileStore implements product.HistoryStore on a local JSON file.
type FileStore struct {
	historyPath    string
	mostRecentPath string
}

// historyFile is the on-disk history format.
type historyFile struct {
	Entries []product.HistoryEntry `json:"entries"`
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory %s: %w", baseDir, err)
	}
	return &FileStore{
		historyPath:    filepath.Join(baseDir, "history.json"),
		mostRecentPath: filepath.Join(baseDir, "most_recent.json"),
	}, nil
}

// LoadAll reads the ordered history. A missing file is an empty history.
func (s *FileStore) LoadAll(ctx context.Context) ([]product.HistoryEntry, error) {
	data, err := os.ReadFile(s.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history %s: %w", s.historyPath, err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", s.historyPath, err)
	}
	return file.Entries, nil
}

// Persist replaces the stored history with the given ordered entries.
func (s *FileStore) Persist(ctx context.Context, entries []product.HistoryEntry) error {
	data, err := json.MarshalIndent(historyFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return writeAtomic(s.historyPath, data)
}

// LoadMostRecent returns the cached most-recent snapshot, nil when none
// was stored.
func (s *FileStore) LoadMostRecent(ctx context.Context) (*product.Snapshot, error) {
	data, err := os.ReadFile(s.mostRecentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read most recent %s: %w", s.mostRecentPath, err)
	}

	var snap product.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode most recent %s: %w", s.mostRecentPath, err)
	}
	return &snap, nil
}

// SaveMostRecent caches the snapshot of the product scanned last.
func (s *FileStore) SaveMostRecent(ctx context.Context, snap *product.Snapshot) error {
	if snap == nil {
		if err := os.Remove(s.mostRecentPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove most recent %s: %w", s.mostRecentPath, err)
		}
		return nil
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode most recent: %w", err)
	}
	return writeAtomic(s.mostRecentPath, data)
}

// writeAtomic writes via a temp file and rename so a crash mid-write
// never corrupts the stored history.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
