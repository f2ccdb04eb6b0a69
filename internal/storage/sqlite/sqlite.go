package sqlite

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/goodtune/kclinic/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements storage.Store on top of a SQLite database
type Store struct {
	db           *sql.DB
	stateStore   *stateStore
	archiveStore *archiveStore
}

// Open creates a new database connection and runs migrations
func Open(path string) (*Store, error) {
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:           db,
		stateStore:   &stateStore{db: db},
		archiveStore: &archiveStore{db: db},
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// State returns the StateStore implementation
func (s *Store) State() storage.StateStore {
	return s.stateStore
}

// Archive returns the ArchiveStore implementation
func (s *Store) Archive() storage.ArchiveStore {
	return s.archiveStore
}

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := getMigrations()
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	sort.Ints(versions)

	for _, version := range versions {
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

func getMigrations() map[int]string {
	return map[int]string{
		1: migration001State,
		2: migration002FinishedSessions,
	}
}

const migration001State = `
CREATE TABLE IF NOT EXISTS state (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	revision INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const migration002FinishedSessions = `
CREATE TABLE IF NOT EXISTS finished_sessions (
	id TEXT PRIMARY KEY,
	practitioner_id TEXT NOT NULL,
	practitioner_name TEXT,
	patient_id TEXT NOT NULL,
	patient_name TEXT,
	treatment_zone_id TEXT,
	zone_name TEXT,
	session_number INTEGER NOT NULL DEFAULT 0,
	total_sessions INTEGER NOT NULL DEFAULT 0,
	laser_type TEXT,
	queue_entry_id TEXT,
	started_at INTEGER NOT NULL, -- unix nanoseconds
	ended_at INTEGER NOT NULL, -- unix nanoseconds
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	total_paused_ms INTEGER NOT NULL DEFAULT 0,
	notes TEXT,
	photo_count INTEGER NOT NULL DEFAULT 0,
	voice_note_count INTEGER NOT NULL DEFAULT 0,
	side_effect_count INTEGER NOT NULL DEFAULT 0,
	payload TEXT -- JSON snapshot of the ended session
);

CREATE INDEX idx_finished_ended ON finished_sessions(ended_at);
CREATE INDEX idx_finished_practitioner ON finished_sessions(practitioner_id, ended_at);
CREATE INDEX idx_finished_patient ON finished_sessions(patient_id, ended_at);
`
