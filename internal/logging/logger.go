// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID.
	TraceIDKey ContextKey = "trace_id"
	// ServiceKey is the context key for service name.
	ServiceKey ContextKey = "service"
	// EntityKey is the context key for the entity (event/record) being processed.
	EntityKey ContextKey = "entity"
)

// Logger wraps logrus.Logger with a fixed service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns a logger entry populated from context values.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if entity := ctx.Value(EntityKey); entity != nil {
		entry = entry.WithField("entity", entity)
	}
	return entry
}

// WithFields returns a logger entry with the given fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns a logger entry carrying the error and service name.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace ID from context, if any.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithEntity stores an entity descriptor ("event_record:123") in the context.
func WithEntity(ctx context.Context, entity string) context.Context {
	return context.WithValue(ctx, EntityKey, entity)
}

// LogDispatch logs a single Dispatcher pass over an entity.
func (l *Logger) LogDispatch(ctx context.Context, kind, status string, id int64, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"kind":        kind,
		"status":      status,
		"id":          id,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("dispatch failed")
		return
	}
	entry.Debug("dispatch completed")
}

// LogIngest logs an inbound ingest request outcome.
func (l *Logger) LogIngest(ctx context.Context, remoteAddr string, status int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"remote_addr": remoteAddr,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("ingest request")
}
