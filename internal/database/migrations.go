// Package database owns the sqlite schema and connection setup shared by the
// user, token, document and index stores.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns all available migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE COLLATE NOCASE,
					hashed_password TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version: 2,
			Name:    "create_auth_tokens_table",
			SQL: `
				-- Opaque access and refresh tokens, stored as sha256 hashes
				CREATE TABLE IF NOT EXISTS auth_tokens (
					token_id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					token_type TEXT NOT NULL CHECK (token_type IN ('access', 'refresh')),
					hashed_token TEXT NOT NULL UNIQUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					expires_at DATETIME NOT NULL,
					last_used_at DATETIME,
					FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_auth_tokens_user_id ON auth_tokens (user_id);
				CREATE INDEX IF NOT EXISTS idx_auth_tokens_expires_at ON auth_tokens (expires_at);
				CREATE INDEX IF NOT EXISTS idx_auth_tokens_hashed_token ON auth_tokens (hashed_token);
			`,
		},
		{
			Version: 3,
			Name:    "create_documents_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL,
					title TEXT NOT NULL,
					content TEXT NOT NULL,
					content_hash TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
				);

				CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents (owner_id);
			`,
		},
		{
			Version: 4,
			Name:    "create_vector_indexes_table",
			SQL: `
				-- One row per document: the serialized index and its last access
				-- time live together so they can never diverge.
				CREATE TABLE IF NOT EXISTS vector_indexes (
					document_id TEXT PRIMARY KEY,
					content_hash TEXT NOT NULL,
					embedder TEXT NOT NULL,
					chunk_count INTEGER NOT NULL,
					payload BLOB NOT NULL,
					size_bytes INTEGER NOT NULL,
					created_at INTEGER NOT NULL,
					last_access INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_vector_indexes_last_access ON vector_indexes (last_access);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB) error {
	// First, create the migrations table if it doesn't exist
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range GetMigrations() {
		if migration.Version <= currentVersion {
			continue // Already applied
		}

		if err := runMigration(db, migration); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// getCurrentVersion returns the current schema version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// If table doesn't exist, return version 0
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration
func runMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		migration.Version, migration.Name,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ConfigureDatabase applies SQLite optimizations and runs migrations
func ConfigureDatabase(db *sql.DB) error {
	// SQLite serializes writes, so limit connections to avoid contention.
	// WAL mode allows concurrent readers, so we allow a few connections.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0) // Don't expire connections

	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-ahead logging for better concurrency
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds for locks
		"PRAGMA synchronous=NORMAL", // Safer sync mode with good performance
		"PRAGMA cache_size=10000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma '%s': %w", pragma, err)
		}
	}

	if err := RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// connectionPragmas are applied by the driver to every pooled connection.
const connectionPragmas = "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Open opens (creating if needed) the sqlite database at path and configures
// it. The parent directory is created when missing.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+connectionPragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ConfigureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
