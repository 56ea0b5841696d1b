package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. Format "json" writes one JSON object per line,
// anything else uses the colored console writer.
func New(level, format string, caller bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, format, caller)
}

func NewWithWriter(w io.Writer, level, format string, caller bool) zerolog.Logger {
	out := w
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	ctx := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp()
	if caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Module returns a child logger tagged with the component name.
func Module(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("module", name).Logger()
}
