package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Patterns for sensitive data redaction
var (
	bearerTokenPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`)
	oauthTokenPattern  = regexp.MustCompile(`(access_token|refresh_token|id_token|client_secret)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`)
	apiKeyPattern      = regexp.MustCompile(`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`)
	authHeaderPattern  = regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+`)
)

func redactSensitiveData(s string) string {
	s = bearerTokenPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	s = oauthTokenPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = apiKeyPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = authHeaderPattern.ReplaceAllString(s, "Authorization: [REDACTED]")
	return s
}

// ZapLogger implements Logger on top of a zap core tree
type ZapLogger struct {
	base    *zap.Logger
	level   zap.AtomicLevel
	redact  bool
	closers []io.Closer
}

func toZapLevel(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func consoleEncoderConfig(cfg LogConfig) zapcore.EncoderConfig {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.CallerKey = ""
	if cfg.EnableColor {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if !cfg.EnableTimestamp {
		ec.TimeKey = ""
	} else {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}
	return ec
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
	}
}

// newZapLogger builds the core tree: console output to cfg.Console (stderr by
// default) and JSON lines to cfg.OutputFile when set.
func newZapLogger(cfg LogConfig) (*ZapLogger, error) {
	level := zap.NewAtomicLevelAt(toZapLevel(cfg.Level))
	var cores []zapcore.Core
	var closers []io.Closer

	if cfg.EnableConsole {
		w := cfg.Console
		if w == nil {
			w = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig(cfg)),
			zapcore.Lock(zapcore.AddSync(w)),
			level,
		))
	}

	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closers = append(closers, file)
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig()),
			zapcore.Lock(file),
			level,
		))
	}

	return &ZapLogger{
		base:    zap.New(zapcore.NewTee(cores...)),
		level:   level,
		redact:  cfg.RedactSensitive,
		closers: closers,
	}, nil
}

func (l *ZapLogger) zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			if l.redact {
				v = redactSensitiveData(v)
			}
			out = append(out, zap.String(f.Key, v))
		case error:
			msg := v.Error()
			if l.redact {
				msg = redactSensitiveData(msg)
			}
			out = append(out, zap.String(f.Key, msg))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *ZapLogger) log(level zapcore.Level, msg string, fields []Field) {
	if !l.level.Enabled(level) {
		return
	}
	if l.redact {
		msg = redactSensitiveData(msg)
	}
	if ce := l.base.Check(level, msg); ce != nil {
		ce.Write(l.zapFields(fields)...)
	}
}

// Debug logs a debug-level message
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	l.log(zapcore.DebugLevel, msg, fields)
}

// Info logs an info-level message
func (l *ZapLogger) Info(msg string, fields ...Field) {
	l.log(zapcore.InfoLevel, msg, fields)
}

// Warn logs a warning-level message
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	l.log(zapcore.WarnLevel, msg, fields)
}

// Error logs an error-level message
func (l *ZapLogger) Error(msg string, fields ...Field) {
	l.log(zapcore.ErrorLevel, msg, fields)
}

// WithTraceID returns a child logger that tags every entry with traceID.
// The child shares the level and sinks of its parent.
func (l *ZapLogger) WithTraceID(traceID string) Logger {
	return &ZapLogger{
		base:   l.base.With(zap.String("traceId", traceID)),
		level:  l.level,
		redact: l.redact,
	}
}

// WithContext returns a child logger carrying the context's trace ID, if any
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level
func (l *ZapLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// Zap exposes the underlying zap logger for libraries that want one directly
func (l *ZapLogger) Zap() *zap.Logger {
	return l.base
}

// Close flushes buffered entries and closes file sinks. Child loggers own no sinks.
func (l *ZapLogger) Close() error {
	_ = l.base.Sync()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}
