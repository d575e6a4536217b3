// Package obs centralizes structured logging on top of zerolog. Every
// component gets a sub-logger tagged with its own "component" field instead
// of reaching for a global logger directly, mirroring how the teacher
// codebase threads a logger handle through each client/trader struct.
package obs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	base = zerolog.New(defaultWriter()).With().Timestamp().Logger()
}

func defaultWriter() io.Writer {
	if os.Getenv("LOG_FORMAT") == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
}

// SetLevel parses a level string (trace/debug/info/warn/error) and applies
// it globally. An invalid level string sets the level to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Component returns a logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// L returns the untagged base logger, for call sites without a natural
// component scope (e.g. main.go startup).
func L() *zerolog.Logger {
	return &base
}
