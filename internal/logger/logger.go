package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var Log = slog.Default()

// ParseLevel maps a config level name to a slog level. The empty string
// is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// Init installs the process-wide logger. Records go to stderr, which keeps
// stdout free for command output, and are appended to logFile when set.
// The returned closer releases the log file.
func Init(level string, logFile string) (io.Closer, error) {
	return InitWriter(os.Stderr, level, logFile)
}

// InitWriter is Init with an explicit console writer.
func InitWriter(w io.Writer, level string, logFile string) (io.Closer, error) {
	logLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	writers := []io.Writer{w}
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten time format
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
