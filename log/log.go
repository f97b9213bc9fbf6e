// Package log provides the structured loggers used across the hap server.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Pairing, Session, MDNS and Server are the package-scoped loggers for each
// subsystem; Configure rebuilds them against the configured sink.
var (
	Pairing = New("pairing")
	Session = New("session")
	MDNS    = New("mdns")
	Server  = New("server")
)

// Configure points every subsystem logger at w, at the given level, and
// sets the global timestamp format to RFC3339.
func Configure(level zerolog.Level, w io.Writer) {
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if w == nil {
		w = os.Stderr
	}
	base = zerolog.New(w).With().Timestamp().Logger()
	Pairing = base.With().Str("component", "pairing").Logger()
	Session = base.With().Str("component", "session").Logger()
	MDNS = base.With().Str("component", "mdns").Logger()
	Server = base.With().Str("component", "server").Logger()
}

// ConfigureFile rotates logs through lumberjack when a file path is given,
// keeping a handful of backups instead of growing one file unbounded.
func ConfigureFile(level zerolog.Level, path string) {
	Configure(level, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	})
}

var base = zerolog.New(os.Stderr).With().Timestamp().Logger()

// New creates a logger for component, sharing the globally configured sink.
func New(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
