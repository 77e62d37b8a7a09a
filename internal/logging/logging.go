// Package logging configures the slog loggers used by mbtoold and mbctl.
//
// The daemon logs JSON to stdout so journald can index the fields; mbctl
// logs human-readable text to stderr so it does not mix with command
// output. Keys are snake_case and errors are logged under "error".
//
// Usage:
//
//	logger := logging.SetupLogger("info")
//	logger.Info("request handled", "request", "PathCopyRequest", "conn_id", id)
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures New.
type Options struct {
	Level  string
	Format Format
	// Output defaults to stdout.
	Output io.Writer
	// AddSource includes the shortened file:line of each call.
	AddSource bool
}

// SetupLogger creates the daemon's JSON logger at the given level and makes
// it the slog default. Unknown levels fall back to info.
func SetupLogger(level string) *slog.Logger {
	logger := New(Options{Level: level, Format: FormatJSON, AddSource: true})
	slog.SetDefault(logger)
	return logger
}

// New builds a logger from opts without touching the slog default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	ho := &slog.HandlerOptions{
		Level:       parseLevel(opts.Level),
		AddSource:   opts.AddSource,
		ReplaceAttr: shortenSource,
	}
	if opts.Format == FormatText {
		return slog.New(slog.NewTextHandler(out, ho))
	}
	return slog.New(slog.NewJSONHandler(out, ho))
}

// shortenSource trims source paths to start at internal/ or cmd/.
func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	source, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}
	source.File = trimToPackage(source.File)
	if idx := strings.Index(source.Function, "internal/"); idx != -1 {
		source.Function = source.Function[idx:]
	}
	return a
}

func trimToPackage(file string) string {
	for _, marker := range []string{"internal/", "cmd/"} {
		if idx := strings.Index(file, marker); idx != -1 {
			return file[idx:]
		}
	}
	return filepath.Base(file)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// WithComponent tags every record from logger with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}
