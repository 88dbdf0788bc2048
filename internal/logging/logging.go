// Package logging builds the root slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format is FormatJSON, FormatText or empty to choose text when Output is a terminal.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a logger writing colorized text through tint on a terminal
// and JSON everywhere else.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	if resolveFormat(opts.Format, out) == FormatText {
		return slog.New(tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		}))
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveFormat(format string, out io.Writer) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return FormatJSON
	case FormatText:
		return FormatText
	}
	if isTerminal(out) {
		return FormatText
	}
	return FormatJSON
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
