package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Bootstrap builds and returns a zerolog logger at levelName
// (debug|info|warn|error, default info); it sets the global
// zerolog.TimeFieldFormat but leaves the package-level log.Logger as it
// is. It follows the same
// zerolog.TimeFieldFormat + console-writer idiom as the teacher's
// cmd/cprotocol/main.go. When pretty is true output is wrapped in a
// zerolog.ConsoleWriter for human-readable terminal output; otherwise it
// stays newline-delimited JSON for log aggregation.
func Bootstrap(levelName string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stderr
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
