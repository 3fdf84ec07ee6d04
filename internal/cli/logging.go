package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// newLogger builds the slog logger handed to the translator, store and
// harness. Records go through zerolog: a console writer for text output,
// one JSON object per line otherwise. Verbose forces debug.
func newLogger(w io.Writer, format, level string, verbose bool) (*slog.Logger, error) {
	zl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("unknown log level %q", level)
		}
		zl = parsed
	}
	if verbose && zl > zerolog.DebugLevel {
		zl = zerolog.DebugLevel
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
	}
	logger := zerolog.New(out).Level(zl).With().Timestamp().Logger()

	return slog.New(slogzerolog.Option{
		Level:  slogLevel(zl),
		Logger: &logger,
	}.NewZerologHandler()), nil
}

func slogLevel(l zerolog.Level) slog.Level {
	switch {
	case l <= zerolog.DebugLevel:
		return slog.LevelDebug
	case l == zerolog.InfoLevel:
		return slog.LevelInfo
	case l == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
