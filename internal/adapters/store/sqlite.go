package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS preferences (
		scope TEXT PRIMARY KEY,
		senders TEXT,
		categories TEXT,
		keywords TEXT,
		whitelist TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS manual_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_pattern TEXT,
		subject_pattern TEXT,
		purpose TEXT,
		category TEXT,
		created_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS category_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_type TEXT,
		pattern TEXT,
		assigned_category TEXT,
		priority INTEGER,
		created_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS temp_blocks (
		sender TEXT PRIMARY KEY,
		reason TEXT,
		created_at TEXT,
		expires_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS processed (
		message_id TEXT PRIMARY KEY,
		sender TEXT,
		subject TEXT,
		decision TEXT,
		category TEXT,
		amount REAL,
		reason TEXT,
		received_at TEXT,
		processed_at TEXT,
		run_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_run ON processed(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_at ON processed(processed_at)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT,
		subject_pattern TEXT,
		confidence REAL,
		matches INTEGER,
		example_subject TEXT,
		status TEXT,
		created_at TEXT
	)`,
}

// NewSQLiteStore opens or creates a SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSQLStore(db, sqliteSchema, logger)
}
