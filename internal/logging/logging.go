// Package logging centralizes the zerolog setup shared by the
// coordinator and worker binaries.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a logger tagged with the given component name
// ("coordinator" or "worker"), writing human-readable console output
// to a terminal and line-delimited JSON otherwise.
func New(component string) zerolog.Logger {
	return zerolog.New(writer()).With().
		Timestamp().
		Str("component", component).
		Logger()
}

func writer() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}
