// Package applog builds the engine's one process-wide zerolog.Logger.
// The logger is never a package-level global: it is built once at
// startup (cmd/relcoredb does so through engine.NewWithDefaultLogger)
// and threaded through engine.Context as an explicit field,
// matching the Design Note that the engine takes a constructed context
// rather than reaching for ambient state.
package applog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a Logger writing human-readable lines to w at the given
// level name (trace, debug, info, warn, error, fatal, panic, or "" for
// info). Context.Execute logs unrecoverable Io/Invariant failures at
// Fatal, which exits the process non-zero; buffer-pool eviction,
// allocator page extension, and B-tree split/merge are not logged.
func New(w io.Writer, levelName string) (zerolog.Logger, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return zerolog.Logger{}, err
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(level).With().Timestamp().Logger(), nil
}

func parseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("applog: unrecognized log level %q: %w", name, err)
	}
	return level, nil
}

// Stderr builds a Logger at the given level writing to os.Stderr, the
// form engine.NewWithDefaultLogger uses at startup.
func Stderr(levelName string) (zerolog.Logger, error) {
	return New(os.Stderr, levelName)
}
