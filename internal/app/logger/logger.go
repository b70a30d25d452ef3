package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Initialize replaces the package logger. An unknown level falls back to info.
func Initialize(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	if err != nil {
		Logger.Warn().Str("level", level).Msg("unknown log level, using info")
	}
}
