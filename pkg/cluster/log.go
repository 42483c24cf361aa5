package cluster

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the base logger for a node process from c. Each worker
// (listener, processor, dispatcher) derives its own sub-logger from this one
// via With().Str("component", ...).
func NewLogger(c *Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if c.LogStdoutPretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(w).
		Level(c.LogLevel).
		With().
		Timestamp().
		Logger()
}
