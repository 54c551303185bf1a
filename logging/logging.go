package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format selects how log records are rendered.
type Format string

const (
	FormatAuto Format = "auto" // FormatAuto uses text for terminals and JSON otherwise.
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat interprets a format name, where an empty string means [FormatAuto].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown log format '%s'", s)
}

// ParseLevel interprets a level name like "debug" or "warn", including offsets like "info+2".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if len(strings.TrimSpace(s)) == 0 {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s'", s)
	}
	return level, nil
}

type Config struct {
	Level     slog.Level
	Format    Format
	AddSource bool
}

// New creates a logger that writes to w, deduplicating repeated attribute keys.
// Records are also sent to each of the tee handlers, if any.
func New(w io.Writer, conf Config, tees ...slog.Handler) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     conf.Level,
		AddSource: conf.AddSource,
	}
	var handler slog.Handler
	if resolveFormat(w, conf.Format) == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	handler = NewDedupeHandler(handler)
	if len(tees) > 0 {
		handler = MergeHandlers(handler, tees[0], tees[1:]...)
	}
	return slog.New(handler)
}

// OpenFile opens (or creates) a file that JSON log records are appended to.
// The returned handler is intended to be passed to [New] as a tee, and the file must be closed by the caller.
func OpenFile(path string, level slog.Level) (slog.Handler, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	handler := NewDedupeHandler(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	return handler, f, nil
}

func resolveFormat(w io.Writer, format Format) Format {
	if format == FormatJSON || format == FormatText {
		return format
	}
	if isTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
