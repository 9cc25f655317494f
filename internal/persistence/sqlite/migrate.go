// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Migration is one schema step for a module. Steps are applied in order and
// recorded in schema_versions so several stores can share one database file.
type Migration struct {
	Version int
	SQL     string
}

// Migrate applies every migration of module newer than its recorded version.
func Migrate(db *sql.DB, module string, migrations []Migration) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
		module TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		migrated_at_ms INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("sqlite: create schema_versions: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRow("SELECT version FROM schema_versions WHERE module = ?", module).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: read version of %s: %w", module, err)
	}

	applied := current
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			return fmt.Errorf("sqlite: %s migration %d: %w", module, m.Version, err)
		}
		applied = m.Version
	}
	if applied == current {
		return nil
	}

	if _, err := tx.Exec(`INSERT INTO schema_versions (module, version, migrated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(module) DO UPDATE SET version = excluded.version, migrated_at_ms = excluded.migrated_at_ms`,
		module, applied, time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

// Millis converts t to unix milliseconds, mapping the zero time to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
