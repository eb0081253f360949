package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pantryscan/scan-service/internal/barcode"
	"github.com/pantryscan/scan-service/internal/product"
)

// PostgresStore implements product.HistoryStore on a pgx pool, for
// deployments where scan histories are kept server-side per device.
type PostgresStore struct {
	pool   *pgxpool.Pool
	device string
}

// NewPostgresStore creates a store scoped to one device id.
func NewPostgresStore(pool *pgxpool.Pool, device string) *PostgresStore {
	return &PostgresStore{pool: pool, device: device}
}

// EnsureSchema creates the history tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS scan_history (
			device   TEXT NOT NULL,
			position INTEGER NOT NULL,
			barcode  TEXT NOT NULL,
			category TEXT NOT NULL,
			comment  TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (device, barcode)
		);

		CREATE TABLE IF NOT EXISTS scan_most_recent (
			device   TEXT PRIMARY KEY,
			snapshot JSONB NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// LoadAll reads the device's history ordered most-recent-first.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]product.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT barcode, category, comment
		FROM scan_history
		WHERE device = $1
		ORDER BY position
	`, s.device)
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

// Persist replaces the device's stored history with the given entries.
func (s *PostgresStore) Persist(ctx context.Context, entries []product.HistoryEntry) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM scan_history WHERE device = $1`, s.device); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		for i, entry := range entries {
			_, err := tx.Exec(ctx, `
				INSERT INTO scan_history (device, position, barcode, category, comment)
				VALUES ($1, $2, $3, $4, $5)
			`, s.device, i, entry.Barcode, string(entry.Category), entry.Comment)
			if err != nil {
				return fmt.Errorf("insert history entry %s: %w", entry.Barcode, err)
			}
		}
		return nil
	})
}

// LoadMostRecent returns the device's cached most-recent snapshot.
func (s *PostgresStore) LoadMostRecent(ctx context.Context) (*product.Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT snapshot FROM scan_most_recent WHERE device = $1
	`, s.device).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query most recent: %w", err)
	}

	var snap product.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode most recent: %w", err)
	}
	return &snap, nil
}

// SaveMostRecent caches the snapshot of the product scanned last.
func (s *PostgresStore) SaveMostRecent(ctx context.Context, snap *product.Snapshot) error {
	if snap == nil {
		if _, err := s.pool.Exec(ctx, `DELETE FROM scan_most_recent WHERE device = $1`, s.device); err != nil {
			return fmt.Errorf("clear most recent: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode most recent: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_most_recent (device, snapshot)
		VALUES ($1, $2)
		ON CONFLICT (device) DO UPDATE SET snapshot = excluded.snapshot
	`, s.device, payload)
	if err != nil {
		return fmt.Errorf("upsert most recent: %w", err)
	}
	return nil
}
