// Package db opens the SQLite file that holds the cookbook vector index.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register sqlite-vec as an auto-extension so every SQLite connection
	// opened by this process has the vec0 virtual table module available.
	vec.Auto()
}

// ErrNoIndex is returned by OpenReadOnly when the file does not exist.
var ErrNoIndex = errors.New("db: index file does not exist")

// DB wraps a *sql.DB and exposes helpers.
type DB struct {
	conn *sql.DB
	path string
}

// Create builds a fresh index database at path for vectors of the given
// dimension. An existing file at path is replaced.
func Create(path string, dimension int) (*DB, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("db: invalid embedding dimension %d", dimension)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("db: create directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("db: remove old index: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("db: resolve path: %w", err)
	}

	// Rollback journal instead of WAL: the index is shipped as a single file.
	dsn := fmt.Sprintf("file:%s?_journal_mode=DELETE&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: apply migrations: %w", err)
	}
	if err := applyVectorTable(conn, dimension); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: create vector table: %w", err)
	}
	if err := setMeta(conn, metaDimension, fmt.Sprint(dimension)); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, path: absPath}, nil
}

// OpenReadOnly opens an existing index database for querying.
func OpenReadOnly(path string) (*DB, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("db: resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoIndex
		}
		return nil, fmt.Errorf("db: stat index: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	// Readers share the handle; sqlite serialises them internally.
	conn.SetMaxOpenConns(4)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if _, err := getMeta(conn, metaDimension); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: not a knowledge index: %w", err)
	}

	return &DB{conn: conn, path: absPath}, nil
}

// Conn returns the underlying *sql.DB for use by the vector layer.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Path returns the absolute path of the database file.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the connection is live.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

// Dimension returns the embedding dimension recorded at creation.
func (d *DB) Dimension() (int, error) {
	v, err := getMeta(d.conn, metaDimension)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscan(v, &n); err != nil {
		return 0, fmt.Errorf("db: parse dimension %q: %w", v, err)
	}
	return n, nil
}

// SetMeta records a key/value pair in index_meta.
func (d *DB) SetMeta(key, value string) error {
	return setMeta(d.conn, key, value)
}

// Meta reads a value from index_meta.
func (d *DB) Meta(key string) (string, error) {
	return getMeta(d.conn, key)
}
