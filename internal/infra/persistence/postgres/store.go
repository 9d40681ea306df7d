// Package postgres keeps an append-only JSONB journal in Postgres through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	sqldocs "wellbore/docs/schema/sql"
	"wellbore/internal/infra/persistence/journal"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/wellbore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the sql.Open hook and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

var _ journal.Journal = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// NewStore connects to dsn (falls back to defaultDSN) and ensures the journal
// table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqldocs.Postgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure journal table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, r journal.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal(id, kind, occurred_at, payload) VALUES($1,$2,$3,$4)`,
		r.ID, r.Kind, r.OccurredAt.UTC(), string(r.Payload))
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	query := `SELECT id, kind, occurred_at, payload FROM journal ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select journal: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []journal.Record
	for rows.Next() {
		var (
			r       journal.Record
			payload string
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.OccurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }
