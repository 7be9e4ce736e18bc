// Package logging configures the global slog logger for popstash.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level. An empty or unknown value
// yields fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return fallback
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Options configures Setup.
type Options struct {
	Format Format
	// Level is parsed with ParseLevel. Empty means debug on a terminal and
	// info otherwise.
	Level string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// Setup builds a logger from opts, installs it as the slog default and
// returns it. Call once after flag/viper parsing.
func Setup(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	tty := IsTTY(w)
	useTint := opts.Format == FormatText || (opts.Format != FormatJSON && tty)

	fallback := slog.LevelInfo
	if tty {
		fallback = slog.LevelDebug
	}
	level := ParseLevel(opts.Level, fallback)

	var h slog.Handler
	if useTint {
		h = tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
			NoColor:    !tty,
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
