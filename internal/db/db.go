package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pensum-app/pensum/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/pensum.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.pensum.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, "pensum.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS topics (
		  id         TEXT PRIMARY KEY,
		  name       TEXT NOT NULL UNIQUE,
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS questions (
		  id             TEXT PRIMARY KEY,
		  topic_id       TEXT NOT NULL REFERENCES topics(id),
		  code           TEXT NOT NULL,
		  question_text  TEXT NOT NULL,
		  question_type  TEXT NOT NULL,
		  content        TEXT,
		  context        TEXT,
		  options_title  TEXT,
		  options_prefix TEXT,
		  created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_questions_topic
		ON questions(topic_id, code);

		CREATE TABLE IF NOT EXISTS options (
		  id                  TEXT PRIMARY KEY,
		  question_id         TEXT NOT NULL REFERENCES questions(id),
		  position            INTEGER NOT NULL,
		  option_text         TEXT NOT NULL,
		  is_correct          INTEGER,
		  correct_order_index INTEGER,
		  side                TEXT,
		  correct_match_id    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_options_question
		ON options(question_id, position);

		CREATE TABLE IF NOT EXISTS material_pages (
		  id           TEXT PRIMARY KEY,
		  number       INTEGER NOT NULL,
		  title        TEXT NOT NULL,
		  description  TEXT NOT NULL,
		  key_concepts TEXT NOT NULL,
		  material_url TEXT
		);

		CREATE TABLE IF NOT EXISTS question_pages (
		  question_id TEXT NOT NULL REFERENCES questions(id),
		  page_id     TEXT NOT NULL REFERENCES material_pages(id),
		  PRIMARY KEY (question_id, page_id)
		);

		CREATE TABLE IF NOT EXISTS cards (
		  id             TEXT PRIMARY KEY,
		  user_id        TEXT NOT NULL,
		  question_id    TEXT NOT NULL REFERENCES questions(id),
		  stability      REAL NOT NULL,
		  difficulty     REAL NOT NULL,
		  due            INTEGER NOT NULL,
		  elapsed_days   INTEGER NOT NULL,
		  scheduled_days INTEGER NOT NULL,
		  learning_steps INTEGER NOT NULL,
		  reps           INTEGER NOT NULL,
		  lapses         INTEGER NOT NULL,
		  state          INTEGER NOT NULL,
		  last_review    INTEGER,
		  notes          TEXT,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL,
		  UNIQUE (user_id, question_id)
		);

		CREATE INDEX IF NOT EXISTS idx_cards_user_due
		ON cards(user_id, state, due);

		CREATE TABLE IF NOT EXISTS review_logs (
		  id                TEXT PRIMARY KEY,
		  card_id           TEXT NOT NULL REFERENCES cards(id),
		  user_id           TEXT NOT NULL,
		  rating            INTEGER NOT NULL,
		  state             INTEGER NOT NULL,
		  stability         REAL NOT NULL,
		  difficulty        REAL NOT NULL,
		  elapsed_days      INTEGER NOT NULL,
		  last_elapsed_days INTEGER NOT NULL,
		  scheduled_days    INTEGER NOT NULL,
		  learning_steps    INTEGER NOT NULL,
		  due               INTEGER NOT NULL,
		  review            INTEGER NOT NULL,
		  created_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_review_logs_user_state
		ON review_logs(user_id, state, review);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
