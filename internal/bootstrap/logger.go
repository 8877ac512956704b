// Package bootstrap assembles the ClearSkies services from configuration.
// The API server and the worker share it so both see the same sources and
// stores.
package bootstrap

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, serviceName, version, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", version).
		Logger()
}
