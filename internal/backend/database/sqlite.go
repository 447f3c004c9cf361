package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteSlot stores the slot as one row of a key-value table.
type SQLiteSlot struct {
	db  *sql.DB
	key string
}

func NewSQLiteSlot(connectionString, key string) (*SQLiteSlot, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// every new connection to ":memory:" would see its own empty database
	db.SetMaxOpenConns(1)

	slot := &SQLiteSlot{
		db:  db,
		key: key,
	}
	if err := slot.createTable(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create slots table: %w", err)
	}
	return slot, nil
}

func (s *SQLiteSlot) createTable() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *SQLiteSlot) Read(ctx context.Context) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM slots WHERE key = ?", s.key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (s *SQLiteSlot) Write(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO slots (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.key, data)
	return err
}

func (s *SQLiteSlot) Remove(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM slots WHERE key = ?", s.key)
	return err
}

// Ping reports whether the underlying database is reachable.
func (s *SQLiteSlot) Ping() bool {
	return s.db.Ping() == nil
}

func (s *SQLiteSlot) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
