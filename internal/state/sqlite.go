package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const keyLastEPGUpdate = "last_epg_update"

// maxCycles bounds the history table.
const maxCycles = 200

// SQLite is a Store backed by a single sqlite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// One writer; the scheduler and status server share the handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cycles (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		channels INTEGER NOT NULL DEFAULT 0,
		programmes INTEGER NOT NULL DEFAULT 0
	);`)
	return err
}

func (s *SQLite) LastUpdate(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", keyLastEPGUpdate).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last update: %w", err)
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil || sec <= 0 {
		// A corrupt value means "never": the next cycle runs immediately.
		return time.Time{}, nil
	}
	return time.Unix(sec, 0).UTC(), nil
}

// SetLastUpdate stores t as Unix seconds.
func (s *SQLite) SetLastUpdate(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		keyLastEPGUpdate, strconv.FormatInt(t.Unix(), 10))
	if err != nil {
		return fmt.Errorf("write last update: %w", err)
	}
	return nil
}

func (s *SQLite) RecordCycle(ctx context.Context, c Cycle) error {
	ok := 0
	if c.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, kind, started_at, finished_at, ok, error, channels, programmes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Kind, c.Started.UnixMilli(), c.Finished.UnixMilli(), ok, c.Error, c.Channels, c.Programmes)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM cycles WHERE seq <= (SELECT MAX(seq) FROM cycles) - ?", maxCycles)
	if err != nil {
		return fmt.Errorf("trim cycles: %w", err)
	}
	return nil
}

func (s *SQLite) RecentCycles(ctx context.Context, n int) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, started_at, finished_at, ok, error, channels, programmes
		 FROM cycles ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()
	var out []Cycle
	for rows.Next() {
		var c Cycle
		var started, finished int64
		var ok int
		if err := rows.Scan(&c.ID, &c.Kind, &started, &finished, &ok, &c.Error, &c.Channels, &c.Programmes); err != nil {
			return nil, err
		}
		c.Started = time.UnixMilli(started).UTC()
		c.Finished = time.UnixMilli(finished).UTC()
		c.OK = ok == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
