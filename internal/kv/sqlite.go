package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/summarizer-go/internal/logger"
)

// SQLiteStore keeps every record as one row of the records table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and creates the records table if
// it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "summarizer.db"
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kv: create db directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("kv: open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS records (
        name TEXT PRIMARY KEY,
        value BLOB NOT NULL,
        updated_at DATETIME NOT NULL
    );`); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create records table: %w", err)
	}
	logger.L.Info("sqlite store initialized", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE name = ?;`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: select %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStore) Put(ctx context.Context, name string, value []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO records (name, value, updated_at) VALUES (?,?,?)
        ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		name, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("kv: upsert %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name = ?;`, name); err != nil {
		return fmt.Errorf("kv: delete %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
