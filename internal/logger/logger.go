// Package logger provides the process-wide structured logger shared by the
// client and daemon runtimes.
package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log *slog.Logger

// Init configures the global logger. Output always includes stdout; logFile,
// when non-empty, is appended to as well so the daemon keeps a durable trail
// across restarts.
func Init(level string, logFile string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

// current returns Log, or slog's default logger when Init has not run.
func current() *slog.Logger {
	if Log == nil {
		return slog.Default()
	}
	return Log
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }
func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a logger scoped to a component name, e.g. logger.With("transport").
func With(component string) *slog.Logger {
	if Log == nil {
		return slog.Default().With("component", component)
	}
	return Log.With("component", component)
}
