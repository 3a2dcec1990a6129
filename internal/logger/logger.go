// Package logger builds the structured, rotating zerolog logger every
// worker in this repository writes through.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	Level      string // trace|debug|info|warn|error|fatal
	Format     string // "console" or "json"
	Path       string // directory for log files; empty disables file logging
	MaxSizeMB  int    // max size in MB before rotation (default: 10)
	MaxBackups int    // max number of old log files to keep (default: 5)
	MaxAgeDays int    // max age in days to keep old files (default: 30)
	Compress   bool   // compress rotated files (default: true)
}

// Logger wraps zerolog.Logger with the file rotator it owns.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	output := newConsoleOutput(cfg.Format)
	var rotator *lumberjack.Logger
	if cfg.Path != "" {
		rotator, output = setupFileLogging(cfg, output)
	}

	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{Logger: zl, rotator: rotator}
}

// WithComponent returns a child logger tagged with a component field, the
// idiom every package in this repository uses to scope its log lines.
func (l *Logger) WithComponent(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

// Close flushes and closes the underlying rotator, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

func newConsoleOutput(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

func setupFileLogging(cfg Config, consoleOutput io.Writer) (*lumberjack.Logger, io.Writer) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, consoleOutput
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, "cinequeue.log"),
		MaxSize:    positiveOrDefault(cfg.MaxSizeMB, 10),
		MaxBackups: positiveOrDefault(cfg.MaxBackups, 5),
		MaxAge:     positiveOrDefault(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	fileWriter := zerolog.ConsoleWriter{Out: rotator, TimeFormat: time.RFC3339, NoColor: true}
	return rotator, io.MultiWriter(consoleOutput, fileWriter)
}

func positiveOrDefault(val, fallback int) int {
	if val <= 0 {
		return fallback
	}
	return val
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
