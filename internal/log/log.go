// Package log configures a single structured logger for the whole daemon,
// generalizing the nested SynapseStrike module's logger package (leveled
// Infof/Warnf/Errorf helpers over a console writer) in place of the
// teacher's bare log.Printf calls.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// Init sets the global log level; call once from main.
func Init(debug bool) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// With returns a child logger with the given component name attached,
// used throughout internal/* so every line is attributable to its module.
func With(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
