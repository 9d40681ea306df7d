// Package sqlite keeps an append-only JSON journal in a SQLite database
// using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	sqldocs "wellbore/docs/schema/sql"
	"wellbore/internal/infra/persistence/journal"
)

const defaultPath = "wellbore.db"

var _ journal.Journal = (*Store)(nil)

// Store appends records to the journal table and reads them back newest
// first.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqldocs.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Append(ctx context.Context, r journal.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal(id, kind, occurred_at, payload) VALUES(?,?,?,?)`,
		r.ID, r.Kind, r.OccurredAt.UTC().Format(time.RFC3339Nano), r.Payload)
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, occurred_at, payload FROM journal ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select journal: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []journal.Record
	for rows.Next() {
		var (
			r  journal.Record
			ts string
		)
		if err := rows.Scan(&r.ID, &r.Kind, &ts, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if r.OccurredAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Path() string { return s.path }
