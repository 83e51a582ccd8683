// Package db owns the SQLite connection: pragma setup, the read/write pool
// split, and the embedded migration set. Modeled on
// banshee-data-velocity.report's internal/db/db.go, adapted from a single
// *sql.DB to the read/write pool split the spec requires (readers never
// block writers).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB holds the two pools the spec's concurrency model calls for: a
// single-connection write pool (SQLite allows one writer at a time anyway,
// so this just makes the constraint explicit and avoids SQLITE_BUSY retries)
// and a multi-connection read pool.
type DB struct {
	Write *sql.DB
	Read  *sql.DB
	path  string
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Open opens the write and read pools against path and applies the pragmas
// the spec mandates (WAL, synchronous=NORMAL, foreign keys enforced).
func Open(path string) (*DB, error) {
	write, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open write pool: %w", err)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", path)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	read.SetMaxOpenConns(8)

	for _, conn := range []*sql.DB{write, read} {
		for _, p := range pragmas {
			if _, err := conn.Exec(p); err != nil {
				write.Close()
				read.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", p, err)
			}
		}
	}

	return &DB{Write: write, Read: read, path: path}, nil
}

func (db *DB) Close() error {
	werr := db.Write.Close()
	rerr := db.Read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// WithTimeout wraps ctx with the caller's statement timeout, matching the
// spec's "every DB call is wrapped in a timeout helper" requirement.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
