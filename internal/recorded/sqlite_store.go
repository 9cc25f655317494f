// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorded

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
)

var migrations = []sqlite.Migration{
	{Version: 1, SQL: `
	CREATE TABLE IF NOT EXISTS recorded (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reserve_id INTEGER NOT NULL,
		rule_id INTEGER NOT NULL DEFAULT 0,
		program_id INTEGER NOT NULL DEFAULT 0,
		channel_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		start_at_ms INTEGER NOT NULL,
		end_at_ms INTEGER NOT NULL,
		drop_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		is_failed INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_id INTEGER NOT NULL REFERENCES recorded(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_video_files_recorded ON video_files(recorded_id);

	CREATE TABLE IF NOT EXISTS recorded_tags (
		recorded_id INTEGER NOT NULL REFERENCES recorded(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (recorded_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS recorded_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		channel_id INTEGER NOT NULL,
		end_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recorded_history_name ON recorded_history(name, channel_id, end_at_ms);
	`},
}

// SqliteStore keeps recorded items on the daemon database.
type SqliteStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewSqliteStore(db *sql.DB) (*SqliteStore, error) {
	if err := sqlite.Migrate(db, "recorded", migrations); err != nil {
		return nil, fmt.Errorf("recorded store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db, now: time.Now}, nil
}

// CreateRecorded inserts rec together with its first video file. Successful
// recordings are also added to the history; failed ones are not, so a later
// airing is still picked up.
func (s *SqliteStore) CreateRecorded(ctx context.Context, rec Recorded, file VideoFile) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created := s.now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO recorded (reserve_id, rule_id, program_id, channel_id, name, start_at_ms, end_at_ms,
			drop_count, error_count, is_failed, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ReserveID, rec.RuleID, rec.ProgramID, rec.ChannelID, rec.Name,
		sqlite.Millis(rec.StartAt), sqlite.Millis(rec.EndAt),
		rec.DropCount, rec.ErrorCount, rec.IsFailed, sqlite.Millis(created))
	if err != nil {
		return 0, fmt.Errorf("insert recorded: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if file.Path != "" {
		if _, err := insertVideoFile(ctx, tx, id, file, created); err != nil {
			return 0, err
		}
	}
	if err := insertTags(ctx, tx, id, rec.Tags); err != nil {
		return 0, err
	}
	if !rec.IsFailed {
		if _, err := tx.ExecContext(ctx, "INSERT INTO recorded_history (name, channel_id, end_at_ms) VALUES (?, ?, ?)",
			rec.Name, rec.ChannelID, sqlite.Millis(rec.EndAt)); err != nil {
			return 0, fmt.Errorf("insert history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertVideoFile(ctx context.Context, db execer, recordedID int64, f VideoFile, created time.Time) (int64, error) {
	if f.Type == "" {
		f.Type = FileTS
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO video_files (recorded_id, type, name, path, size, created_at_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		recordedID, string(f.Type), f.Name, f.Path, f.Size, sqlite.Millis(created))
	if err != nil {
		return 0, fmt.Errorf("insert video file: %w", err)
	}
	return res.LastInsertId()
}

func insertTags(ctx context.Context, db execer, recordedID int64, tags []int64) error {
	for _, tag := range tags {
		if _, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO recorded_tags (recorded_id, tag_id) VALUES (?, ?)",
			recordedID, tag); err != nil {
			return fmt.Errorf("insert tag %d: %w", tag, err)
		}
	}
	return nil
}

func (s *SqliteStore) exists(ctx context.Context, id int64) error {
	var one int
	err := s.DB.QueryRowContext(ctx, "SELECT 1 FROM recorded WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return err
}

// AppendVideoFile attaches another file, typically encoder output, and
// returns its id.
func (s *SqliteStore) AppendVideoFile(ctx context.Context, recordedID int64, f VideoFile) (int64, error) {
	if err := s.exists(ctx, recordedID); err != nil {
		return 0, err
	}
	return insertVideoFile(ctx, s.DB, recordedID, f, s.now())
}

// AddTags links tags to a recorded item. Existing links are kept.
func (s *SqliteStore) AddTags(ctx context.Context, recordedID int64, tags []int64) error {
	if err := s.exists(ctx, recordedID); err != nil {
		return err
	}
	return insertTags(ctx, s.DB, recordedID, tags)
}

// HasRecentRecording reports whether name was recorded on channelID with an
// end at or after since. A zero since searches the whole history.
func (s *SqliteStore) HasRecentRecording(ctx context.Context, name string, channelID int64, since time.Time) (bool, error) {
	var n int
	var err error
	if since.IsZero() {
		err = s.DB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM recorded_history WHERE name = ? AND channel_id = ?",
			name, channelID).Scan(&n)
	} else {
		err = s.DB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM recorded_history WHERE name = ? AND channel_id = ? AND end_at_ms >= ?",
			name, channelID, sqlite.Millis(since)).Scan(&n)
	}
	if err != nil {
		return false, fmt.Errorf("query history: %w", err)
	}
	return n > 0, nil
}

// Get loads one item with its files and tags.
func (s *SqliteStore) Get(ctx context.Context, id int64) (Recorded, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, reserve_id, rule_id, program_id, channel_id, name, start_at_ms, end_at_ms,
			drop_count, error_count, is_failed, created_at_ms
		FROM recorded WHERE id = ?`, id)
	rec, err := scanRecorded(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recorded{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Recorded{}, err
	}
	if err := s.loadChildren(ctx, &rec); err != nil {
		return Recorded{}, err
	}
	return rec, nil
}

// List returns the newest items first.
func (s *SqliteStore) List(ctx context.Context, offset, limit int) ([]Recorded, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, reserve_id, rule_id, program_id, channel_id, name, start_at_ms, end_at_ms,
			drop_count, error_count, is_failed, created_at_ms
		FROM recorded ORDER BY start_at_ms DESC, id DESC LIMIT ? OFFSET ?`, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list recorded: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Recorded{}
	for rows.Next() {
		rec, err := scanRecorded(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecorded(sc scanner) (Recorded, error) {
	var r Recorded
	var start, end, created int64
	err := sc.Scan(&r.ID, &r.ReserveID, &r.RuleID, &r.ProgramID, &r.ChannelID, &r.Name,
		&start, &end, &r.DropCount, &r.ErrorCount, &r.IsFailed, &created)
	if err != nil {
		return r, err
	}
	r.StartAt = sqlite.FromMillis(start)
	r.EndAt = sqlite.FromMillis(end)
	r.CreatedAt = sqlite.FromMillis(created)
	return r, nil
}

func (s *SqliteStore) loadChildren(ctx context.Context, r *Recorded) error {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, type, name, path, size, created_at_ms FROM video_files WHERE recorded_id = ? ORDER BY id", r.ID)
	if err != nil {
		return fmt.Errorf("load video files: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		f := VideoFile{RecordedID: r.ID}
		var typ string
		var created int64
		if err := rows.Scan(&f.ID, &typ, &f.Name, &f.Path, &f.Size, &created); err != nil {
			return err
		}
		f.Type = FileType(typ)
		f.CreatedAt = sqlite.FromMillis(created)
		r.VideoFiles = append(r.VideoFiles, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	trows, err := s.DB.QueryContext(ctx, "SELECT tag_id FROM recorded_tags WHERE recorded_id = ? ORDER BY tag_id", r.ID)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer func() { _ = trows.Close() }()
	for trows.Next() {
		var tag int64
		if err := trows.Scan(&tag); err != nil {
			return err
		}
		r.Tags = append(r.Tags, tag)
	}
	return trows.Err()
}

// VideoFile returns one file row.
func (s *SqliteStore) VideoFile(ctx context.Context, id int64) (VideoFile, error) {
	f := VideoFile{ID: id}
	var typ string
	var created int64
	err := s.DB.QueryRowContext(ctx,
		"SELECT recorded_id, type, name, path, size, created_at_ms FROM video_files WHERE id = ?", id).
		Scan(&f.RecordedID, &typ, &f.Name, &f.Path, &f.Size, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return VideoFile{}, fmt.Errorf("%w: video file %d", ErrNotFound, id)
	}
	if err != nil {
		return VideoFile{}, err
	}
	f.Type = FileType(typ)
	f.CreatedAt = sqlite.FromMillis(created)
	return f, nil
}

// DeleteVideoFile removes a file row. The file itself is left to the caller.
func (s *SqliteStore) DeleteVideoFile(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM video_files WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: video file %d", ErrNotFound, id)
	}
	return nil
}
