// Package db provides the local SQLite store for cached WaniKani records.
//
// The store holds two collections, subjects and assignments, each keyed by the
// remote id. Writes are upserts so a record fetched twice simply replaces the
// earlier copy. The store is a cache: it can be cleared at any time and rebuilt
// by a full sync.
//
// Architecture:
//   - Database file: <data_dir>/cache.db
//   - WAL mode: concurrent readers during sync writes
//   - Tables: subjects, assignments
//   - Indexes: (kind, level) and level for deck selection, subject_id for joins
//
// Every successful mutation is published to subscribers (see Subscribe), which
// is how study decks and the event server learn that cached data changed.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by single-record lookups when the id is not cached.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection used as the local record cache.
type DB struct {
	conn   *sqlx.DB
	path   string
	broker *broker
}

// Open creates a new database connection at the specified path.
//
// The database is opened with WAL journaling, a 5 second busy timeout and
// immediate write transactions so concurrent sync chains serialize cleanly.
// The schema is not created here; call InitSchema once after opening.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open(filepath.Join(dataDir, "cache.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	filePath := strings.TrimPrefix(path, "file:")
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + filePath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(wal)" +
		"&_txlock=immediate"

	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := raw.Ping(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	raw.SetMaxOpenConns(8)
	raw.SetMaxIdleConns(4)
	raw.SetConnMaxLifetime(5 * time.Minute)

	return &DB{
		conn:   sqlx.NewDb(raw, "sqlite3"),
		path:   filePath,
		broker: newBroker(),
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn.DB
}

// Close closes the database connection.
// Performs a WAL checkpoint and releases every subscriber.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	db.broker.closeAll()

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// It is idempotent and safe to call on every start.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		level INTEGER NOT NULL,
		characters TEXT NOT NULL DEFAULT '',
		readings TEXT NOT NULL DEFAULT '[]',  -- JSON array
		meanings TEXT NOT NULL DEFAULT '[]',  -- JSON array
		meaning_mnemonic TEXT NOT NULL DEFAULT '',
		reading_mnemonic TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY,
		subject_id INTEGER NOT NULL,
		subject_kind TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 0,
		available_at TEXT,
		started_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subjects_kind_level ON subjects(kind, level);
	CREATE INDEX IF NOT EXISTS idx_subjects_level ON subjects(level);
	CREATE INDEX IF NOT EXISTS idx_subjects_updated ON subjects(kind, updated_at);

	CREATE INDEX IF NOT EXISTS idx_assignments_subject ON assignments(subject_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_level ON assignments(level);
	CREATE INDEX IF NOT EXISTS idx_assignments_updated ON assignments(updated_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Counts summarizes the cached collections.
type Counts struct {
	Kanji          int `db:"kanji"`
	Vocabulary     int `db:"vocabulary"`
	KanaVocabulary int `db:"kana_vocabulary"`
	Assignments    int `db:"assignments"`
	Started        int `db:"started"`
}

// Subjects returns the total number of cached subjects.
func (c Counts) Subjects() int {
	return c.Kanji + c.Vocabulary + c.KanaVocabulary
}

// Counts returns the number of cached records per collection.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	query := `
	SELECT
		(SELECT COUNT(*) FROM subjects WHERE kind = 'kanji') AS kanji,
		(SELECT COUNT(*) FROM subjects WHERE kind = 'vocabulary') AS vocabulary,
		(SELECT COUNT(*) FROM subjects WHERE kind = 'kana_vocabulary') AS kana_vocabulary,
		(SELECT COUNT(*) FROM assignments) AS assignments,
		(SELECT COUNT(*) FROM assignments WHERE started_at IS NOT NULL) AS started
	`

	var c Counts
	if err := db.conn.GetContext(ctx, &c, query); err != nil {
		return Counts{}, fmt.Errorf("failed to count records: %w", err)
	}
	return c, nil
}

// ClearAll removes every cached subject and assignment.
func (db *DB) ClearAll(ctx context.Context) error {
	if err := db.ClearSubjects(ctx); err != nil {
		return err
	}
	return db.ClearAssignments(ctx)
}
