package cli

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new slog.Logger writing to w with the given format.
// It supports "json" and "text" formats, defaulting to "json" if an invalid
// format is provided, so a typo never silences logging.
func NewLogger(w io.Writer, debug bool, logFormat string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{}
	if debug {
		handlerOpts.Level = slog.LevelDebug
	}
	switch logFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	default:
		logger := slog.New(slog.NewJSONHandler(w, handlerOpts))
		logger.Info("incorrect configuration for logFormat, using json handler")
		return logger
	}
}

// LogWriter returns the log destination for path: a size-rotated file when
// path is set, stderr otherwise. Stderr keeps log lines out of reports
// written to stdout; rotation keeps long-lived scheduled runs from growing
// one file forever.
func LogWriter(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// CronSlogAdapter adapts a slog.Logger to the interface expected by robfig/cron/v3
type CronSlogAdapter struct {
	*slog.Logger
}

// Info wires slog.Logger Info method to cron Logger interface
func (a *CronSlogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.Logger.Info(msg, keysAndValues...)
}

// Error wires slog.Logger Error method to cron Logger interface
func (a *CronSlogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.Logger.Error(msg, append([]any{"error", err.Error()}, keysAndValues...)...)
}
