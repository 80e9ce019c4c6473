// Package store persists the opening graph: positions keyed by canonical
// FEN, move edges between them, aggregated statistics, and the import
// ledger. It is the single write path for ingestion and the read path for
// queries; all multi-row mutations run inside explicit transactions.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// DefaultBusyTimeoutMS bounds how long a statement waits on a locked
// database before the contention is surfaced as an error.
const DefaultBusyTimeoutMS = 5000

// Store wraps a SQLite database holding one opening tree.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the opening tree database at path with WAL
// journaling and the given busy timeout, then runs any pending migrations.
// WAL keeps concurrent readers from blocking on the single writer.
func Open(path string, busyTimeoutMS int) (*Store, error) {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = DefaultBusyTimeoutMS
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(on)",
		path, busyTimeoutMS)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check journal mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying *sql.DB for direct queries.
// Use sparingly; prefer adding methods to Store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin starts a write transaction.
func (s *Store) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

// PositionCount returns the number of stored positions.
func (s *Store) PositionCount() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&n)
	return n, err
}

// MoveCount returns the number of stored move edges.
func (s *Store) MoveCount() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM moves").Scan(&n)
	return n, err
}

// Vacuum rebuilds the database file, reclaiming space freed by deletions.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}
