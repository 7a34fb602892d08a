// Package logging builds the zerolog logger shared by the service binaries.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a logger for the given environment. Development gets debug level and a
// console writer; everything else emits JSON at info level.
func New(appEnv, component string) zerolog.Logger {
	return newWithWriter(os.Stdout, appEnv, component)
}

func newWithWriter(w io.Writer, appEnv, component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
