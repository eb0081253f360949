package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/product"
)

// SQLiteStore implements product.HistoryStore on a local SQLite
// database, the natural fit for a single-device scan history.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history (
	position INTEGER NOT NULL,
	barcode  TEXT NOT NULL PRIMARY KEY,
	category TEXT NOT NULL,
	comment  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS most_recent (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot TEXT NOT NULL
);
`

// NewSQLiteStore opens (and if needed initializes) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// LoadAll reads the history ordered most-recent-first.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]product.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT barcode, category, comment FROM history ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []product.HistoryEntry
	for rows.Next() {
		var entry product.HistoryEntry
		var category string
		if err := rows.Scan(&entry.Barcode, &category, &entry.Comment); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.Category = barcode.CategoryFromString(category)
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate history rows: %w", rows.Err())
	}
	return entries, nil
}

// Persist replaces the stored history with the given ordered entries.
func (s *SQLiteStore) Persist(ctx context.Context, entries []product.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for i, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO history (position, barcode, category, comment)
			VALUES (?, ?, ?, ?)
		`, i, entry.Barcode, string(entry.Category), entry.Comment)
		if err != nil {
			return fmt.Errorf("insert history entry %s: %w", entry.Barcode, err)
		}
	}

	return tx.Commit()
}

// LoadMostRecent returns the cached most-recent snapshot, nil when none
// was stored.
func (s *SQLiteStore) LoadMostRecent(ctx context.Context) (*product.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM most_recent WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query most recent: %w", err)
	}

	var snap product.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode most recent: %w", err)
	}
	return &snap, nil
}

// SaveMostRecent caches the snapshot of the product scanned last.
func (s *SQLiteStore) SaveMostRecent(ctx context.Context, snap *product.Snapshot) error {
	if snap == nil {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM most_recent WHERE id = 1`); err != nil {
			return fmt.Errorf("clear most recent: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode most recent: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO most_recent (id, snapshot) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET snapshot = excluded.snapshot
	`, string(payload))
	if err != nil {
		return fmt.Errorf("upsert most recent: %w", err)
	}
	return nil
}
