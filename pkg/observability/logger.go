package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/weightlossprojectionlab/familyaccess/pkg/contextkeys"
)

// LogConfig selects level and output format for the process logger
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
	Output io.Writer
}

// NewLogger builds the process logger
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(parsed)

	return logger, nil
}

// FromContext returns the request-scoped logger, falling back to base.
// Request and user ids from the context are attached when present.
func FromContext(ctx context.Context, base logrus.FieldLogger) logrus.FieldLogger {
	logger := contextkeys.GetLogger(ctx)
	if logger != nil {
		return logger
	}
	if base == nil {
		base = logrus.StandardLogger()
	}

	fields := logrus.Fields{}
	if id := contextkeys.GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := contextkeys.GetUserID(ctx); id != "" {
		fields["user_id"] = id
	}
	if len(fields) == 0 {
		return WithTraceContext(ctx, base)
	}
	return WithTraceContext(ctx, base.WithFields(fields))
}

// WithTraceContext adds trace and span ids when a span is recording
func WithTraceContext(ctx context.Context, logger logrus.FieldLogger) logrus.FieldLogger {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return logger
	}

	spanCtx := span.SpanContext()
	return logger.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
