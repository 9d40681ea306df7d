// Package journal defines the append-only record shape shared by the SQL
// persistence drivers.
package journal

import (
	"context"
	"time"
)

// Record is one journal row. Payload is JSON owned by the caller.
type Record struct {
	ID         string
	Kind       string
	OccurredAt time.Time
	Payload    []byte
}

// Journal appends records and reads them back newest first.
type Journal interface {
	Append(ctx context.Context, r Record) error
	// Recent returns up to limit records; limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
