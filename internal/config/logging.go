package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// StderrLevel is the minimum level printed to the terminal. Everything else
// goes to the log file only.
const StderrLevel = slog.LevelWarn

// Stderr is the terminal side of loggers built by SetupLogger.
var Stderr = &SwitchWriter{w: os.Stderr}

// SwitchWriter forwards writes unless muted. Muted writes are dropped.
type SwitchWriter struct {
	w     io.Writer
	muted atomic.Bool
}

// Mute turns forwarding off or back on.
func (s *SwitchWriter) Mute(on bool) { s.muted.Store(on) }

func (s *SwitchWriter) Write(p []byte) (int, error) {
	if s.muted.Load() {
		return len(p), nil
	}
	return s.w.Write(p)
}

// SetupLogger creates a dual-output logger: text to stderr, JSON to a
// rotating file. Returns the logger and a cleanup function to close the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	// Stderr handler (text for readability)
	stderrHandler := slog.NewTextHandler(Stderr, &slog.HandlerOptions{
		Level: max(level, StderrLevel),
	})

	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		slog.Error("failed to create log directory, using stderr only", "error", err, "file", logFile)
		return slog.New(stderrHandler), func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}

	// File handler (JSON for machine parsing)
	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
	return logger, rotator.Close
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: max(level, StderrLevel)})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
