// Package kv provides the get/put-by-name blob persistence every other store in
// the bot is layered on. Backends: a directory of JSON files, SQLite, PostgreSQL
// and an in-process map.
package kv

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/comigor/summarizer-go/internal/config"
)

// ErrNotFound is returned by Get when no value is stored under a name.
var ErrNotFound = errors.New("kv: not found")

// Store is a flat namespace of blobs. Last write wins.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, value []byte) error
	Delete(ctx context.Context, name string) error
	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(/[A-Za-z0-9_\-]+)*$`)

// ValidateName rejects names that could escape a file store's root or that
// backends would otherwise have to quote.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("kv: invalid name %q", name)
	}
	return nil
}

// Name joins path segments into a store name.
func Name(parts ...string) string {
	return strings.Join(parts, "/")
}

// Open creates the backend selected by cfg.Driver and applies compression.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		s, err = NewFileStore(cfg.Path)
	case "sqlite":
		s, err = NewSQLiteStore(cfg.Path)
	case "postgres":
		s, err = NewPostgresStore(ctx, cfg.DSN)
	case "memory":
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("kv: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Compression) {
	case "", "none":
		return s, nil
	case "zstd":
		return Compressed(s), nil
	default:
		_ = s.Close()
		return nil, fmt.Errorf("kv: unsupported compression %q", cfg.Compression)
	}
}
