// Package sqlite provides the SQLite connection factories for MovieGPT.
// Uses modernc.org/sqlite, a pure-Go SQLite driver (no CGO required).
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Register the modernc sqlite driver under the name "sqlite"
	_ "modernc.org/sqlite"
)

// PoolConfig bounds the *sql.DB connection pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultPool is used when callers pass a zero PoolConfig.
var DefaultPool = PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}

// NewDB opens (or creates) the application database at path (conversation
// history, query audit) configured for concurrent use:
//   - WAL journal mode (readers do not block the writer)
//   - Foreign key enforcement
//   - 5-second busy timeout
//   - Synchronous=NORMAL
//
// Use ":memory:" as path for in-memory databases in tests.
// Returns an error if the parent directory does not exist (will not create it).
func NewDB(path string) (*sql.DB, error) {
	if err := checkParentDir(path); err != nil {
		return nil, fmt.Errorf("sqlite.NewDB: %w", err)
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"

	db, err := open(dsn, DefaultPool)
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewDB: %q: %w", path, err)
	}
	return db, nil
}

// NewReadOnlyDB opens the movie database with query_only enabled on every
// pooled connection, so writes fail inside the engine even if they get past
// the statement guard.
func NewReadOnlyDB(path string, pool PoolConfig) (*sql.DB, error) {
	if err := checkParentDir(path); err != nil {
		return nil, fmt.Errorf("sqlite.NewReadOnlyDB: %w", err)
	}

	dsn := path +
		"?_pragma=query_only(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=temp_store(MEMORY)"

	db, err := open(dsn, pool)
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewReadOnlyDB: %q: %w", path, err)
	}
	return db, nil
}

func open(dsn string, pool PoolConfig) (*sql.DB, error) {
	if pool.MaxOpenConns <= 0 {
		pool = DefaultPool
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func checkParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("parent directory %q does not exist", dir)
	}
	return nil
}
