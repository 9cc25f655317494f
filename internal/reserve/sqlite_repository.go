// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
)

var migrations = []sqlite.Migration{
	{Version: 1, SQL: `
	CREATE TABLE IF NOT EXISTS reserves (
		id INTEGER PRIMARY KEY,
		rule_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		start_at_ms INTEGER NOT NULL,
		end_at_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		doc TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reserves_start ON reserves(start_at_ms);

	CREATE TABLE IF NOT EXISTS reserve_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reserve_dismissed (
		identity TEXT PRIMARY KEY,
		until_ms INTEGER NOT NULL
	);
	`},
}

// SqliteRepository persists reservations as JSON documents with the columns
// needed for ad-hoc inspection.
type SqliteRepository struct {
	DB *sql.DB
}

func NewSqliteRepository(db *sql.DB) (*SqliteRepository, error) {
	if err := sqlite.Migrate(db, "reserve", migrations); err != nil {
		return nil, fmt.Errorf("reserve repository: migration failed: %w", err)
	}
	return &SqliteRepository{DB: db}, nil
}

func (s *SqliteRepository) Load(ctx context.Context) (State, error) {
	var st State

	rows, err := s.DB.QueryContext(ctx, "SELECT doc FROM reserves ORDER BY id")
	if err != nil {
		return st, fmt.Errorf("load reserves: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return st, err
		}
		var r Reserve
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return st, fmt.Errorf("decode reserve: %w", err)
		}
		st.Reserves = append(st.Reserves, r)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	err = s.DB.QueryRowContext(ctx, "SELECT value FROM reserve_meta WHERE key = 'last_id'").Scan(&st.Meta.LastID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("load reserve meta: %w", err)
	}

	drows, err := s.DB.QueryContext(ctx, "SELECT identity, until_ms FROM reserve_dismissed")
	if err != nil {
		return st, fmt.Errorf("load dismissed: %w", err)
	}
	defer func() { _ = drows.Close() }()
	st.Meta.Dismissed = make(map[string]time.Time)
	for drows.Next() {
		var key string
		var until int64
		if err := drows.Scan(&key, &until); err != nil {
			return st, err
		}
		st.Meta.Dismissed[key] = sqlite.FromMillis(until)
	}
	return st, drows.Err()
}

func (s *SqliteRepository) Apply(ctx context.Context, d Diff, meta Meta) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range d.Deleted {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reserves WHERE id = ?", r.ID); err != nil {
			return fmt.Errorf("delete reserve %d: %w", r.ID, err)
		}
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO reserves (id, rule_id, channel_id, start_at_ms, end_at_ms, status, doc, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_id = excluded.rule_id,
			channel_id = excluded.channel_id,
			start_at_ms = excluded.start_at_ms,
			end_at_ms = excluded.end_at_ms,
			status = excluded.status,
			doc = excluded.doc,
			updated_at_ms = excluded.updated_at_ms`)
	if err != nil {
		return err
	}
	defer func() { _ = upsert.Close() }()

	for _, group := range [][]Reserve{d.Inserted, d.Updated} {
		for i := range group {
			r := &group[i]
			doc, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if _, err := upsert.ExecContext(ctx, r.ID, r.RuleID, r.ChannelID,
				sqlite.Millis(r.StartAt), sqlite.Millis(r.EndAt), string(r.Status()),
				string(doc), sqlite.Millis(r.UpdatedAt)); err != nil {
				return fmt.Errorf("upsert reserve %d: %w", r.ID, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO reserve_meta (key, value) VALUES ('last_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, meta.LastID); err != nil {
		return fmt.Errorf("save reserve meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM reserve_dismissed"); err != nil {
		return err
	}
	for key, until := range meta.Dismissed {
		if _, err := tx.ExecContext(ctx, "INSERT INTO reserve_dismissed (identity, until_ms) VALUES (?, ?)",
			key, sqlite.Millis(until)); err != nil {
			return err
		}
	}

	return tx.Commit()
}
