// Package db is the sqlite persistence layer: schema creation, the
// optimistic-lock game store and the migration lockfile.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors surfaced to the service layer.
var (
	// ErrOptimisticLock means a version compare-and-set updated zero rows.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if missing) the sqlite database at path with the
// required session options: foreign keys on, WAL journal, busy timeout.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_foreign_keys": {"on"},
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
	}.Encode())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// A second connection to :memory: would see a different database.
	sqlDB.SetMaxOpenConns(1)
	return &DB{DB: sqlDB, path: ""}, nil
}

// Path returns the database file path, or "" for in-memory databases.
func (db *DB) Path() string {
	return db.path
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
