package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel  // Minimum log level to output
	Format LogFormat // Output format (json or text)
	Output io.Writer // Output destination (defaults to stderr)
	Quiet  bool      // If true, suppress non-error output
}

// Logger wraps slog.Logger for allssh's diagnostics
type Logger struct {
	logger *slog.Logger
	config Config
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: convertLogLevel(config.Level),
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &Logger{
		logger: slog.New(handler),
		config: config,
	}
}

func convertLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	if l.config.Quiet {
		return // Suppress non-error output in quiet mode
	}
	l.logger.Info(msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// IsQuiet returns whether the logger is in quiet mode
func (l *Logger) IsQuiet() bool {
	return l.config.Quiet
}

// LogResolve logs the outcome of host spec resolution
func (l *Logger) LogResolve(spec string, hostCount int) {
	l.Info("host spec resolved",
		"spec", spec,
		"host_count", hostCount,
	)
}

// LogUndefinedGroup logs a reference to a group the store does not know
func (l *Logger) LogUndefinedGroup(group string) {
	l.Warn("undefined group skipped",
		"group", group,
	)
}

// LogGroupLoad logs group store loading
func (l *Logger) LogGroupLoad(path string, groupCount int) {
	l.Info("groups loaded",
		"path", path,
		"group_count", groupCount,
	)
}

// LogProbe logs the outcome of a liveness probe pass
func (l *Logger) LogProbe(probed, alive int, elapsed time.Duration) {
	l.Info("liveness probe completed",
		"probed", probed,
		"alive", alive,
		"duration_ms", elapsed.Milliseconds(),
	)
}

// LogSpawn logs the spawn of one remote-command process
func (l *Logger) LogSpawn(host string, seq int, pid int) {
	l.Info("remote command spawned",
		"host", host,
		"seq", seq,
		"pid", pid,
	)
}

// LogJobDone logs the completion of one job
func (l *Logger) LogJobDone(host string, seq int, exitCode int, signal int, elapsed time.Duration) {
	l.Info("remote command finished",
		"host", host,
		"seq", seq,
		"exit_code", exitCode,
		"signal", signal,
		"duration_ms", elapsed.Milliseconds(),
	)
}

// LogTimeout logs the global timeout firing with jobs still pending
func (l *Logger) LogTimeout(pending int) {
	l.Warn("global timeout fired",
		"pending_jobs", pending,
	)
}

// LogRunSummary logs the aggregate outcome of a run
func (l *Logger) LogRunSummary(total, failed int, aggregate int, elapsed time.Duration) {
	l.Info("run completed",
		"total_jobs", total,
		"failed_jobs", failed,
		"aggregate_exit_code", aggregate,
		"total_duration_ms", elapsed.Milliseconds(),
	)
}

// LogConfigLoad logs configuration loading events
func (l *Logger) LogConfigLoad(source string) {
	l.Info("configuration loaded",
		"source", source,
	)
}

// NewLoggerFromConfig creates a logger from application configuration
func NewLoggerFromConfig(logLevel, logFormat string, quiet bool) *Logger {
	var level LogLevel
	switch logLevel {
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}

	var format LogFormat
	switch logFormat {
	case "json":
		format = FormatJSON
	default:
		format = FormatText
	}

	return NewLogger(Config{
		Level:  level,
		Format: format,
		Quiet:  quiet,
	})
}
