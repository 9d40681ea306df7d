// Package blob is the entry point to artifact storage: it re-exports the
// core contract and opens the configured driver.
package blob

import (
	"context"
	"fmt"

	"wellbore/internal/blob/core"
	fsstore "wellbore/internal/infra/blob/fs"
	memstore "wellbore/internal/infra/blob/memory"
	s3store "wellbore/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
	S3Config         = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists

	CloneMetadata = core.CloneMetadata
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver   `toml:"driver" yaml:"driver"`
	FSRoot string   `toml:"fs_root" yaml:"fs_root"`
	S3     S3Config `toml:"s3" yaml:"s3"`
}

// DefaultConfig stores artifacts under ./blobdata.
func DefaultConfig() Config {
	return Config{Driver: DriverFilesystem, FSRoot: fsstore.DefaultRoot}
}

// Validate reports configuration that Open would reject.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverFilesystem, DriverMemory, "":
		return nil
	case DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("blob: s3 driver requires a bucket")
		}
		return nil
	default:
		return fmt.Errorf("blob: unknown driver %q", c.Driver)
	}
}

// Open constructs the configured store. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	default:
		return fsstore.New(cfg.FSRoot)
	}
}

// NewMemory returns a process-local store.
func NewMemory() Store { return memstore.New() }
