package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MigrateLock serializes schema migration across processes sharing a sqlite
// file. The guard is a lockfile next to the database; release is guaranteed
// on both success and failure paths and a double release is a no-op.
type MigrateLock struct {
	path     string
	mu       sync.Mutex
	released bool
	held     bool
}

// AcquireMigrateLock takes the migration lock for the database at dbPath,
// polling until timeout. An empty dbPath (in-memory database) returns a
// no-op guard.
func AcquireMigrateLock(ctx context.Context, dbPath string, timeout time.Duration) (*MigrateLock, error) {
	if dbPath == "" {
		return &MigrateLock{}, nil
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize database path: %w", err)
	}
	lockPath := abs + ".migrate.lock"

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &MigrateLock{path: lockPath, held: true}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create migration lockfile: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for migration lock %s", lockPath)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Release removes the lockfile. Safe to call more than once.
func (l *MigrateLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released || !l.held {
		l.released = true
		return nil
	}
	l.released = true
	return os.Remove(l.path)
}

// Migrate creates the schema and seeds the built-in AI profiles. It must run
// under the migration lock; bootstrap aborts on failure.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return db.seedDefaultProfiles(ctx)
}

// seedDefaultProfiles inserts the catalog rows for the built-in strategies if
// missing.
func (db *DB) seedDefaultProfiles(ctx context.Context) error {
	profiles := []struct {
		name, version, display string
		memoryLevel            int
	}{
		{"strategic", "2.0.0", "Strategist", 80},
		{"reckoner", "0.1.0", "Reckoner", 80},
		{"tactician", "1.4.0", "Tactician", 60},
		{"heuristic", "1.0.0", "Beginner", 30},
		{"random", "1.0.0", "Chaos", 0},
	}
	for _, p := range profiles {
		_, err := db.ExecContext(ctx, `
			INSERT INTO ai_profiles (registry_name, registry_version, variant, display_name, memory_level)
			VALUES (?, ?, 'default', ?, ?)
			ON CONFLICT(registry_name, variant) DO NOTHING
		`, p.name, p.version, p.display, p.memoryLevel)
		if err != nil {
			return fmt.Errorf("failed to seed ai profile %s: %w", p.name, err)
		}
	}
	return nil
}
