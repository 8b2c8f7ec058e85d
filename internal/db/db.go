// Package db provides the durable local store: a sqlite file holding cached
// read-models and the pending mutation queues.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/farmlink/agrosync/internal/errors"
)

// FileName is the database file created inside the data directory.
const FileName = "agrosync.db"

// DB wraps the sql.DB with sync engine configuration.
type DB struct {
	*sql.DB
}

// Open opens the sqlite database in dataDir, creating the directory if needed.
// The database is opened with:
//   - WAL mode so cache reads do not block queue writes
//   - NORMAL synchronous mode
//   - a 5 second busy timeout
//   - a single connection, which serializes writers
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Storage("create data directory", err)
	}

	dbPath := filepath.Join(dataDir, FileName)

	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Storage("open database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, errors.Storage("configure database", err)
	}

	return &DB{db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// OpenStore opens the database in dataDir and applies every pending schema
// migration.
func OpenStore(ctx context.Context, dataDir string) (*Store, error) {
	database, err := Open(dataDir)
	if err != nil {
		return nil, err
	}

	migrator := NewMigrator(database.DB, Migrations)
	if err := migrator.Up(ctx); err != nil {
		database.Close()
		return nil, err
	}

	return NewStore(database), nil
}

// Handle opens the store lazily. The first call to Store runs schema setup;
// later calls share the same *Store for the life of the process. A failed
// open is not memoized, so a later call can retry.
type Handle struct {
	dataDir string

	mu    sync.Mutex
	store *Store
}

// NewHandle returns a Handle for the database in dataDir without opening it.
func NewHandle(dataDir string) *Handle {
	return &Handle{dataDir: dataDir}
}

// Store returns the shared store, opening it on first use.
func (h *Handle) Store(ctx context.Context) (*Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store != nil {
		return h.store, nil
	}

	s, err := OpenStore(ctx, h.dataDir)
	if err != nil {
		return nil, err
	}
	h.store = s
	return s, nil
}

// Close closes the store if it was opened. The handle can be reopened later.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	err := h.store.Close()
	h.store = nil
	return err
}
