package db

import (
	"database/sql"
	"fmt"
)

const metaDimension = "embedding_dimension"

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS passages (
		id         TEXT PRIMARY KEY,
		source     TEXT,
		ordinal    INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}

// applyVectorTable creates the sqlite-vec virtual table for passage embeddings.
func applyVectorTable(conn *sql.DB, dimension int) error {
	_, err := conn.Exec(fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_passages USING vec0(
		id TEXT PRIMARY KEY,
		embedding float[%d]
	)`, dimension))
	return err
}

func setMeta(conn *sql.DB, key, value string) error {
	_, err := conn.Exec(
		`INSERT INTO index_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("db: set meta %s: %w", key, err)
	}
	return nil
}

func getMeta(conn *sql.DB, key string) (string, error) {
	var v string
	if err := conn.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, key).Scan(&v); err != nil {
		return "", fmt.Errorf("db: get meta %s: %w", key, err)
	}
	return v, nil
}
