// Package logging wires slog for the risk service and carries per-request
// and per-transaction fields through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	transactionKey contextKey = "transaction"
	loggerKey      contextKey = "logger"
)

// Service is attached to every record so logs from the API and the MCP
// bridge can be told apart once shipped.
const Service = "fraudai"

type transactionFields struct {
	transactionID string
	userID        string
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the service logger writing to stdout.
func New(level string, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter builds a logger writing to w. format is "json" or "text".
func NewWithWriter(w io.Writer, level string, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", Service)
}

// WithRequestID stores the HTTP request ID on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored on ctx, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTransaction stores the transaction being scored and its owner on ctx.
// Empty values are left out of log records.
func WithTransaction(ctx context.Context, transactionID, userID string) context.Context {
	return context.WithValue(ctx, transactionKey, transactionFields{
		transactionID: transactionID,
		userID:        userID,
	})
}

// WithLogger stores logger on ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored on ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L returns the context logger with request and transaction fields attached.
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	var attrs []any
	if reqID := RequestID(ctx); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	if tf, ok := ctx.Value(transactionKey).(transactionFields); ok {
		if tf.transactionID != "" {
			attrs = append(attrs, "transaction_id", tf.transactionID)
		}
		if tf.userID != "" {
			attrs = append(attrs, "user_id", tf.userID)
		}
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
