// Package logging provides the structured, JSON-line logger shared by every
// component. One Logger is created per component so a cycle's lines can be
// grepped by connection.
package logging

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const correlationIDKey ctxKey = "correlation_id"

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetOutput(os.Stdout)
	if os.Getenv("LOG_LEVEL") == "debug" {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
}

// Logger scopes every entry to a component name (e.g. "scheduler",
// "worker:acme-eu").
type Logger struct {
	component string
}

func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) entry(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["service"] = "orderbridge"
	fields["component"] = l.component
	if id := CorrelationID(ctx); id != "" {
		fields["correlation_id"] = id
	}
	return base.WithFields(fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields logrus.Fields) {
	l.entry(ctx, fields).Debug(msg)
}

func (l *Logger) Info(ctx context.Context, msg string, fields logrus.Fields) {
	l.entry(ctx, fields).Info(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields logrus.Fields) {
	l.entry(ctx, fields).Warn(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.entry(ctx, fields).Error(msg)
}

// WithCorrelationID stamps ctx with a fresh (or supplied) correlation id so
// every log line for one poll cycle can be tied together.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
