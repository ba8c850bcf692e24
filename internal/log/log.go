// Package log provides structured logging for go-ruxpin.
// It wraps slog with a runtime-adjustable level and an optional tee that
// mirrors records to a subscriber (the WebSocket log stream).
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelCritical sits above slog.LevelError for messages the operator must see.
const LevelCritical = slog.Level(12)

var (
	logger *slog.Logger
	level  = new(slog.LevelVar)
	tee    *Tee
	once   sync.Once
)

// Init installs the global logger. Valid levels are those accepted by
// ParseLevel; unknown levels fall back to info. Format "json" (or
// GO_ENV=production) selects JSON output, anything else text.
func Init(lvl, format string) {
	once.Do(func() {
		logger = newLogger(os.Stdout, lvl, format)
		slog.SetDefault(logger)
	})
}

func newLogger(w io.Writer, lvl, format string) *slog.Logger {
	if l, err := ParseLevel(lvl); err == nil {
		level.Set(l)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}

	var h slog.Handler
	if format == "json" || os.Getenv("GO_ENV") == "production" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	tee = NewTee(h)
	return slog.New(tee)
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info", "text")
	}
	return logger
}

// SetLevel changes the global level at runtime.
func SetLevel(name string) error {
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(l)
	L().Info("log level changed", "level", LevelName(l))
	return nil
}

// Level returns the current global level.
func Level() slog.Level {
	return level.Level()
}

// Subscribe mirrors every record logged through L to fn. Passing nil
// unsubscribes.
func Subscribe(fn func(Record)) {
	L()
	tee.Subscribe(fn)
}

// ParseLevel accepts debug, info, warn/warning, error and critical in any case.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log: unknown level %q", name)
	}
}

// LevelName returns the upper-case name used on the wire.
func LevelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
			a.Value = slog.StringValue("CRITICAL")
		}
	}
	return a
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
