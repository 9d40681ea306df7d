// Package config loads wellbore settings from defaults, an optional TOML or
// YAML file and WELLBORE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"wellbore/internal/audit"
	"wellbore/internal/blob"
	"wellbore/internal/dataset"
)

type Config struct {
	Server  Server       `toml:"server" yaml:"server"`
	Log     Log          `toml:"log" yaml:"log"`
	Dataset Dataset      `toml:"dataset" yaml:"dataset"`
	Blob    blob.Config  `toml:"blob" yaml:"blob"`
	Audit   audit.Config `toml:"audit" yaml:"audit"`
	Exports Exports      `toml:"exports" yaml:"exports"`
}

type Server struct {
	// Addr is the listen address, e.g. ":8080".
	Addr              string        `toml:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MaxUploadBytes caps uploaded CSV bodies.
	MaxUploadBytes int64 `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	// Metrics selects the pipeline recorder: prometheus or expvar.
	Metrics string `toml:"metrics" yaml:"metrics"`
}

type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type Dataset struct {
	Seed uint64 `toml:"seed" yaml:"seed"`
}

type Exports struct {
	Workers   int `toml:"workers" yaml:"workers"`
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
	// Retain caps the finished export records kept in memory.
	Retain int `toml:"retain" yaml:"retain"`
	// PresignExpiry bounds download links handed out for stored artifacts.
	PresignExpiry time.Duration `toml:"presign_expiry" yaml:"presign_expiry"`
}

const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxUploadBytes:    10 << 20,
			Metrics:           MetricsPrometheus,
		},
		Log:     Log{Level: "info", Format: "logfmt"},
		Dataset: Dataset{Seed: dataset.DefaultSeed},
		Blob:    blob.DefaultConfig(),
		Audit:   audit.DefaultConfig(),
		Exports: Exports{Workers: 2, QueueSize: 64, Retain: 1024, PresignExpiry: 15 * time.Minute},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .toml, .yaml or .yml. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays WELLBORE_* variables onto c.
func (c *Config) ApplyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	parse := func(name string, set func(string) error) {
		if v, ok := os.LookupEnv(name); ok {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	str("WELLBORE_ADDR", &c.Server.Addr)
	str("WELLBORE_METRICS", &c.Server.Metrics)
	parse("WELLBORE_MAX_UPLOAD_BYTES", func(v string) (err error) {
		c.Server.MaxUploadBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	str("WELLBORE_LOG_LEVEL", &c.Log.Level)
	str("WELLBORE_LOG_FORMAT", &c.Log.Format)
	parse("WELLBORE_SEED", func(v string) (err error) {
		c.Dataset.Seed, err = strconv.ParseUint(v, 10, 64)
		return err
	})

	var driver string
	str("WELLBORE_BLOB_DRIVER", &driver)
	if driver != "" {
		c.Blob.Driver = blob.Driver(driver)
	}
	str("WELLBORE_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("WELLBORE_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("WELLBORE_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("WELLBORE_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	parse("WELLBORE_BLOB_S3_PATH_STYLE", func(v string) (err error) {
		c.Blob.S3.PathStyle, err = strconv.ParseBool(v)
		return err
	})

	driver = ""
	str("WELLBORE_AUDIT_DRIVER", &driver)
	if driver != "" {
		c.Audit.Driver = audit.Driver(driver)
	}
	str("WELLBORE_AUDIT_DSN", &c.Audit.DSN)

	parse("WELLBORE_EXPORT_WORKERS", func(v string) (err error) {
		c.Exports.Workers, err = strconv.Atoi(v)
		return err
	})
	parse("WELLBORE_EXPORT_QUEUE_SIZE", func(v string) (err error) {
		c.Exports.QueueSize, err = strconv.Atoi(v)
		return err
	})
	parse("WELLBORE_EXPORT_RETAIN", func(v string) (err error) {
		c.Exports.Retain, err = strconv.Atoi(v)
		return err
	})
	parse("WELLBORE_EXPORT_PRESIGN_EXPIRY", func(v string) (err error) {
		c.Exports.PresignExpiry, err = time.ParseDuration(v)
		return err
	})
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	switch c.Server.Metrics {
	case MetricsPrometheus, MetricsExpvar:
	default:
		errs = append(errs, fmt.Errorf("server.metrics must be %s or %s", MetricsPrometheus, MetricsExpvar))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "logfmt", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be logfmt or json", c.Log.Format))
	}
	if c.Exports.Workers < 1 {
		errs = append(errs, errors.New("exports.workers must be at least 1"))
	}
	if c.Exports.QueueSize < 1 {
		errs = append(errs, errors.New("exports.queue_size must be at least 1"))
	}
	if c.Exports.Retain < 1 {
		errs = append(errs, errors.New("exports.retain must be at least 1"))
	}
	if err := c.Blob.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Audit.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
