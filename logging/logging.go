// Package logging constructs the structured logger used by transport and
// the backends. It owns no state beyond what zerolog itself holds.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stdout at the given level
// ("debug", "info", "warn", "error", ...). An unrecognized level falls
// back to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// Nop returns a logger that discards everything, for callers (and tests)
// that don't want transport/backend logging on stdout.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
