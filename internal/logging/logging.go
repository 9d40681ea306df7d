// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/common/promslog"
)

// New returns a promslog-backed logger writing to w. level is one of
// debug, info, warn, error; format is logfmt or json.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl := promslog.NewLevel()
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	f := promslog.NewFormat()
	if err := f.Set(format); err != nil {
		return nil, fmt.Errorf("log format: %w", err)
	}
	return promslog.New(&promslog.Config{
		Level:  lvl,
		Format: f,
		Style:  promslog.GoKitStyle,
		Writer: w,
	}), nil
}
