// Package logger provides structured logging for neisandb, adapted from
// the original TreeStore logger: a thin wrapper over zerolog with
// collection- and engine-scoped helper constructors.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with neisandb-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// New creates a new structured logger.
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "neisandb").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger { return &l.zlog }

// Info logs an info message.
func (l *Logger) Info(msg string) *zerolog.Event { return l.zlog.Info().Str("msg", msg) }

// Debug logs a debug message.
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) *zerolog.Event { return l.zlog.Warn().Str("msg", msg) }

// Error logs an error message.
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// CollectionLogger scopes a logger to one collection, mirroring the
// teacher's DbLogger/GrpcLogger component-scoping helpers.
func (l *Logger) CollectionLogger(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "collection").Str("collection", name).Logger()}
}

// EngineLogger further scopes a collection logger to one operation.
func (l *Logger) EngineLogger(operation string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("operation", operation).Logger()}
}

// LogOperation logs a completed engine operation with duration and an
// optional error, mirroring the teacher's LogDbOperation.
func (l *Logger) LogOperation(operation string, duration time.Duration, recordCount int, err error) {
	event := l.zlog.Debug().
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("record_count", recordCount)

	if err != nil {
		event = l.zlog.Error().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}
	event.Msg("engine operation completed")
}

var globalLogger *Logger

// InitGlobal initializes the package-level global logger.
func InitGlobal(cfg Config) {
	globalLogger = New(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// Global returns the global logger, initializing it with defaults on
// first use.
func Global() *Logger {
	if globalLogger == nil {
		InitGlobal(Config{Level: "info", Pretty: true})
	}
	return globalLogger
}
