package storage

import (
	"fmt"
	"strings"
)

// migration is one version-tracked, idempotent change applied after the
// baseline schema. Unlike the teacher's ALTER-TABLE-and-ignore-duplicate-
// column approach (kept below as migrationAlterColumns, a fallback for
// plain column additions), these are tracked by version in
// schema_migrations so a later migration can depend on an earlier one
// having already run — matching original_source's versioned diesel
// migrations more closely than a column-existence probe does.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`INSERT OR IGNORE INTO app_config(key, value) VALUES ('local_player_uid', '0')`,
			`INSERT OR IGNORE INTO app_config(key, value) VALUES ('boss_only_dps', 'false')`,
			`INSERT OR IGNORE INTO app_config(key, value) VALUES ('event_update_rate_ms', '150')`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name)`,
		},
	},
}

// migrationAlterColumns are plain column additions applied unconditionally;
// SQLite has no "ADD COLUMN IF NOT EXISTS", so a "duplicate column name"
// error is expected and ignored on every run after the first.
var migrationAlterColumns = []string{}

func (db *DB) runMigrations() error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at_ms INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := db.conn.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at_ms) VALUES (?, strftime('%s','now') * 1000)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", m.version, err)
		}
	}

	for _, stmt := range migrationAlterColumns {
		if _, err := db.conn.Exec(stmt); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			return fmt.Errorf("alter-column migration: %w", err)
		}
	}
	return nil
}
