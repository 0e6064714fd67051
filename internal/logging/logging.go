// Package logging provides structured logging for framecutd.
// It uses the standard library log/slog package; output is JSON unless stdout
// is a terminal, and can be teed into a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. Zero values select JSON on stdout at info level.
type Options struct {
	Level      string
	Format     string // auto, json or text
	File       string
	MaxSizeMB  int
	MaxBackups int
	Stdout     io.Writer
}

// ParseLevel maps debug, info, warn and error onto slog levels. Unknown
// values fall back to info.
func ParseLevel(level string) slog.Level {
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

// NewLogger creates a JSON logger on stdout with the specified log level.
func NewLogger(level string) *slog.Logger {
	logger, _ := New(Options{Level: level, Format: "json"})
	return logger
}

// New builds a logger from opts. The returned closer flushes the rotating
// file, if any; it is never nil.
func New(opts Options) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location for debug level
		AddSource: lvl == slog.LevelDebug,
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	text := useText(opts.Format, out)

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 1),
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		closer = rotator
		// The file always gets JSON so it stays machine readable.
		if text {
			return slog.New(fanout{
				slog.NewTextHandler(out, handlerOpts),
				slog.NewJSONHandler(rotator, handlerOpts),
			}), closer
		}
		out = io.MultiWriter(out, rotator)
	}

	if text {
		return slog.New(slog.NewTextHandler(out, handlerOpts)), closer
	}
	return slog.New(slog.NewJSONHandler(out, handlerOpts)), closer
}

func useText(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "text":
		return true
	case "json":
		return false
	}
	f, ok := out.(interface{ Fd() uintptr })
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithRequestID returns a logger with request_id attribute
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithComponent returns a logger with component attribute
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithJobID returns a logger with job_id attribute
func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With("job_id", jobID)
}

func WithProjectID(logger *slog.Logger, projectID string) *slog.Logger {
	return logger.With("project_id", projectID)
}

// SanitizePath masks sensitive parts of a file path.
// Replaces home directory with ~ for privacy.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
