package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS preferences (
		scope VARCHAR(64) PRIMARY KEY,
		senders TEXT,
		categories TEXT,
		keywords TEXT,
		whitelist TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS manual_rules (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sender_pattern VARCHAR(255),
		subject_pattern VARCHAR(255),
		purpose VARCHAR(255),
		category VARCHAR(64),
		created_at VARCHAR(40)
	)`,
	`CREATE TABLE IF NOT EXISTS category_rules (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		match_type VARCHAR(16),
		pattern VARCHAR(255),
		assigned_category VARCHAR(64),
		priority INT,
		created_at VARCHAR(40)
	)`,
	`CREATE TABLE IF NOT EXISTS temp_blocks (
		sender VARCHAR(255) PRIMARY KEY,
		reason VARCHAR(255),
		created_at VARCHAR(40),
		expires_at VARCHAR(40)
	)`,
	`CREATE TABLE IF NOT EXISTS processed (
		message_id VARCHAR(255) PRIMARY KEY,
		sender VARCHAR(255),
		subject TEXT,
		decision VARCHAR(16),
		category VARCHAR(64),
		amount DOUBLE,
		reason TEXT,
		received_at VARCHAR(40),
		processed_at VARCHAR(40),
		run_id VARCHAR(64),
		INDEX idx_processed_run (run_id),
		INDEX idx_processed_at (processed_at)
	)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sender VARCHAR(255),
		subject_pattern VARCHAR(255),
		confidence DOUBLE,
		matches INT,
		example_subject TEXT,
		status VARCHAR(16),
		created_at VARCHAR(40)
	)`,
}

// NewMySQLStore connects to MySQL with the given DSN and prepares the schema.
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return newSQLStore(db, mysqlSchema, logger)
}
