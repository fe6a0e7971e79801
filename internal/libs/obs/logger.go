package obs

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger. The process pid is attached to
// every event so that a writer and reader process sharing the same buffer
// directory can be told apart in aggregated log output.
func InitLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	log.Logger = log.With().Int("pid", os.Getpid()).Logger()

	// Pretty print in development
	if os.Getenv("ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Int("pid", os.Getpid()).Logger()
	}
}

// Logger returns a logger scoped to a single buffer-internal component
// (e.g. "writer", "reader", "janitor"), so a single process's log stream
// can be filtered down to the subsystem that emitted an event.
func Logger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

