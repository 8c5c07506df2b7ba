// Package telemetry provides structured logging, in-memory operation
// tracking, and commit notification for the update engine process.
// Logging follows the same logrus-based ContextLogger pattern the
// teacher framework uses throughout its services, adapted from a
// multi-service logging package down to what a single engine process
// needs: one global logger, one output router, and request/operation
// scoped field builders.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Level names a logging verbosity, mirroring logrus's own levels without
// requiring callers to import logrus directly for configuration.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Config configures a process-wide logger.
type Config struct {
	Level      Level
	Format     string // "json" or "text"
	Service    string
	AddCaller  bool
	TimeFormat string
}

// DefaultConfig returns a Config with sensible defaults for local
// development: text formatting, info level, no caller reporting.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a logrus.Logger configured per cfg, routing error-
// level entries to stderr and everything else to stdout.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: cfg.TimeFormat, FullTimestamp: true})
	}

	logger.SetReportCaller(cfg.AddCaller)
	logger.SetOutput(&OutputSplitter{})
	return logger
}

// OutputSplitter routes formatted log lines to stderr when they carry
// logrus's "level=error" marker, and to stdout otherwise, so container
// log collectors can treat the two streams differently.
type OutputSplitter struct{}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	if containsErrorLevel(p) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

func containsErrorLevel(p []byte) bool {
	const marker = "level=error"
	if len(p) < len(marker) {
		return false
	}
	for i := 0; i+len(marker) <= len(p); i++ {
		if string(p[i:i+len(marker)]) == marker {
			return true
		}
	}
	return false
}

// ContextLogger carries a base set of structured fields through a
// request or transaction's lifetime, the way the engine threads a
// transaction ID and volume name through every log line it emits.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger builds a ContextLogger seeded with fields.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

func (cl *ContextLogger) with(fields map[string]interface{}) *ContextLogger {
	merged := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: merged}
}

func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.with(map[string]interface{}{key: value})
}

func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	return cl.with(fields)
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.with(map[string]interface{}{"error": err.Error()})
}

// WithContext pulls the request-scoped identifiers the engine's callers
// may have stashed in ctx into the logger's field set.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	fields := map[string]interface{}{}
	if txnID := ctx.Value(ctxKeyTxnID); txnID != nil {
		fields["txn"] = txnID
	}
	if requestID := ctx.Value(ctxKeyRequestID); requestID != nil {
		fields["request_id"] = requestID
	}
	return cl.with(fields)
}

type ctxKey string

const (
	ctxKeyTxnID     ctxKey = "telemetry_txn_id"
	ctxKeyRequestID ctxKey = "telemetry_request_id"
)

// WithTxnID stashes a transaction ID in ctx for later retrieval by
// ContextLogger.WithContext.
func WithTxnID(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, ctxKeyTxnID, txnID)
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// ServiceLogger returns a ContextLogger pre-tagged with the engine's
// service name, for use as the base logger handed to engine.WithLogger.
func ServiceLogger(logger *logrus.Logger, service string) *ContextLogger {
	return NewContextLogger(logger, map[string]interface{}{"service": service})
}

// LogOperation logs the start/end of fn with timing, returning fn's error
// unchanged. The engine's CLI commands (migrate, load-ontology, apply)
// wrap their top-level work in this the way the framework wraps request
// handlers.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Info("operation started")

	err := fn()
	duration := time.Since(start)
	entry := logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Info("operation completed")
	return nil
}

// LogPanic recovers a panic, logging its message and stack trace. Deferred
// at the top of cmd/updateengine's command handlers.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("panic recovered")
	}
}
