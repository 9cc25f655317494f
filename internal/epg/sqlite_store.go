// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

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
	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY,
		network_id INTEGER NOT NULL,
		service_id INTEGER NOT NULL,
		broadcast_type TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS programs (
		id INTEGER PRIMARY KEY,
		channel_id INTEGER NOT NULL,
		network_id INTEGER NOT NULL,
		broadcast_type TEXT NOT NULL,
		start_at_ms INTEGER NOT NULL,
		end_at_ms INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		extended TEXT,
		genres_json TEXT,
		is_free INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_programs_window ON programs(start_at_ms, end_at_ms);
	`},
}

// SqliteStore implements Store on the shared daemon database. The ingestion
// side writes through PutChannels/PutPrograms; the scheduler only reads.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore migrates the guide tables on db.
func NewSqliteStore(db *sql.DB) (*SqliteStore, error) {
	if err := sqlite.Migrate(db, "epg", migrations); err != nil {
		return nil, fmt.Errorf("epg store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) PutChannels(ctx context.Context, chs ...Channel) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range chs {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, network_id, service_id, broadcast_type, name) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network_id = excluded.network_id,
			service_id = excluded.service_id,
			broadcast_type = excluded.broadcast_type,
			name = excluded.name`,
			c.ID, c.NetworkID, c.ServiceID, string(c.BroadcastType), c.Name)
		if err != nil {
			return fmt.Errorf("put channel %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) PutPrograms(ctx context.Context, ps ...Program) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := putPrograms(ctx, tx, ps); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplacePrograms atomically swaps the programs of one channel starting in
// [from, to) for ps. Programs dropped upstream disappear this way.
func (s *SqliteStore) ReplacePrograms(ctx context.Context, channelID int64, from, to time.Time, ps ...Program) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE channel_id = ? AND start_at_ms >= ? AND start_at_ms < ?`,
		channelID, from.UnixMilli(), to.UnixMilli()); err != nil {
		return fmt.Errorf("clear programs of channel %d: %w", channelID, err)
	}
	if err := putPrograms(ctx, tx, ps); err != nil {
		return err
	}
	return tx.Commit()
}

func putPrograms(ctx context.Context, tx *sql.Tx, ps []Program) error {
	for _, p := range ps {
		genres, err := json.Marshal(p.Genres)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO programs (id, channel_id, network_id, broadcast_type, start_at_ms, end_at_ms, name, description, extended, genres_json, is_free)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			network_id = excluded.network_id,
			broadcast_type = excluded.broadcast_type,
			start_at_ms = excluded.start_at_ms,
			end_at_ms = excluded.end_at_ms,
			name = excluded.name,
			description = excluded.description,
			extended = excluded.extended,
			genres_json = excluded.genres_json,
			is_free = excluded.is_free`,
			p.ID, p.ChannelID, p.NetworkID, string(p.BroadcastType), p.StartAt.UnixMilli(), p.EndAt.UnixMilli(),
			p.Name, p.Description, p.Extended, string(genres), p.IsFree)
		if err != nil {
			return fmt.Errorf("put program %d: %w", p.ID, err)
		}
	}
	return nil
}

const programColumns = `id, channel_id, network_id, broadcast_type, start_at_ms, end_at_ms, name, description, extended, genres_json, is_free`

func (s *SqliteStore) Programs(ctx context.Context, from, to time.Time) ([]Program, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+programColumns+` FROM programs
		WHERE end_at_ms > ? AND start_at_ms < ?
		ORDER BY start_at_ms, channel_id, id`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Program(ctx context.Context, id int64) (Program, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE id = ?`, id)
	p, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Program{}, fmt.Errorf("%w: program %d", ErrNotFound, id)
	}
	return p, err
}

func (s *SqliteStore) Channel(ctx context.Context, id int64) (Channel, error) {
	var c Channel
	var bt string
	err := s.DB.QueryRowContext(ctx, `SELECT id, network_id, service_id, broadcast_type, name FROM channels WHERE id = ?`, id).
		Scan(&c.ID, &c.NetworkID, &c.ServiceID, &bt, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, fmt.Errorf("%w: channel %d", ErrNotFound, id)
	}
	if err != nil {
		return Channel{}, err
	}
	c.BroadcastType = BroadcastType(bt)
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (Program, error) {
	var (
		p                   Program
		bt                  string
		startMs, endMs      int64
		desc, ext, genreRaw sql.NullString
	)
	if err := row.Scan(&p.ID, &p.ChannelID, &p.NetworkID, &bt, &startMs, &endMs, &p.Name, &desc, &ext, &genreRaw, &p.IsFree); err != nil {
		return Program{}, err
	}
	p.BroadcastType = BroadcastType(bt)
	p.StartAt = time.UnixMilli(startMs)
	p.EndAt = time.UnixMilli(endMs)
	p.Description = desc.String
	p.Extended = ext.String
	if genreRaw.Valid && genreRaw.String != "" && genreRaw.String != "null" {
		if err := json.Unmarshal([]byte(genreRaw.String), &p.Genres); err != nil {
			return Program{}, fmt.Errorf("decode genres of program %d: %w", p.ID, err)
		}
	}
	return p, nil
}

var _ Store = (*SqliteStore)(nil)
