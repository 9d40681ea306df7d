// Package audit records what the dashboard exported, for whom and how it
// ended. Entries are an operational trail; dashboard state is never
// reconstructed from them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wellbore/internal/infra/persistence/journal"
	"wellbore/internal/infra/persistence/postgres"
	"wellbore/internal/infra/persistence/sqlite"
)

// Entry is one audit record.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Status     string         `json:"status"`
	Subject    string         `json:"subject,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Logger receives audit entries. Record never fails the caller; backends
// log their own write errors.
type Logger interface {
	Record(ctx context.Context, entry Entry)
}

// Lister reads back the most recent entries, newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Store is a Logger that can also list and be closed.
type Store interface {
	Logger
	Lister
	Close() error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverNone     Driver = "none"
)

type Config struct {
	Driver Driver `toml:"driver" yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `toml:"dsn" yaml:"dsn"`
}

func DefaultConfig() Config {
	return Config{Driver: DriverMemory}
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverNone, "":
		return nil
	default:
		return fmt.Errorf("audit: unknown driver %q", c.Driver)
	}
}

// Open builds the configured store. An empty driver means memory.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverNone:
		return Discard{}, nil
	case DriverSQLite:
		store, err := sqlite.NewStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewJournal(store, logger), nil
	case DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewJournal(store, logger), nil
	default:
		return NewMemory(), nil
	}
}

const kindAudit = "audit"

// Journal stores entries as JSON payloads in a SQL journal.
type Journal struct {
	journal journal.Journal
	logger  *slog.Logger
}

func NewJournal(j journal.Journal, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{journal: j, logger: logger}
}

func (j *Journal) Record(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(entry)
	if err == nil {
		err = j.journal.Append(ctx, journal.Record{ID: entry.ID, Kind: kindAudit, OccurredAt: entry.OccurredAt, Payload: payload})
	}
	if err != nil {
		j.logger.LogAttrs(ctx, slog.LevelError, "audit write failed",
			slog.String("id", entry.ID),
			slog.String("action", entry.Action),
			slog.Any("err", err),
		)
	}
}

func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	records, err := j.journal.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		var e Entry
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", r.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (j *Journal) Close() error { return j.journal.Close() }

// Memory keeps entries in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, entry Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
}

func (m *Memory) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Discard drops every entry.
type Discard struct{}

func (Discard) Record(context.Context, Entry) {}

func (Discard) List(context.Context, int) ([]Entry, error) { return nil, nil }

func (Discard) Close() error { return nil }
