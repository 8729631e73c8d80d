// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// SQLiteStore keeps cache entries in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

type entryRow struct {
	Key          string `db:"key"`
	CacheVersion string `db:"cache_version"`
	Fingerprint  string `db:"fingerprint"`
	Timestamp    string `db:"timestamp"`
	Payload      []byte `db:"payload"`
}

// NewSQLiteStore opens or creates the database at path and its schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			cache_version TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			payload BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_version ON cache_entries(cache_version)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get returns the entry stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row,
		`SELECT key, cache_version, fingerprint, timestamp, payload FROM cache_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	return &types.CacheEntry{
		CacheVersion: row.CacheVersion,
		Fingerprint:  row.Fingerprint,
		Timestamp:    row.Timestamp,
		Payload:      row.Payload,
	}, nil
}

// Put inserts or replaces the entry under key.
func (s *SQLiteStore) Put(ctx context.Context, key string, entry types.CacheEntry) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, cache_version, fingerprint, timestamp, payload)
		 VALUES (:key, :cache_version, :fingerprint, :timestamp, :payload)`,
		entryRow{
			Key:          key,
			CacheVersion: entry.CacheVersion,
			Fingerprint:  entry.Fingerprint,
			Timestamp:    entry.Timestamp,
			Payload:      entry.Payload,
		})
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
