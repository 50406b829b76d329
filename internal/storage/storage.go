// Package storage provides SQLite-backed persistence for the combat
// telemetry store: one open encounter's running totals plus the full
// history of closed encounters (spec.md §6.2).
package storage

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a sql.DB for the telemetry store.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at the given path, applies
// the baseline schema, and runs any pending versioned migrations.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set synchronous pragma: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
