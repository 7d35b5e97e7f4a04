// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// CorrelationIDKey is the context key for the job correlation ID
	CorrelationIDKey contextKey = "correlation_id"
	// SenderKey is the context key for the normalized sender address
	SenderKey contextKey = "sender"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, correlation_id, and sender from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok && correlationID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("correlation_id", correlationID))}
	}

	if sender, ok := ctx.Value(SenderKey).(string); ok && sender != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("sender", sender))}
	}

	return newLogger
}

// WithCorrelationID returns a logger with the job correlation ID attached.
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("correlation_id", correlationID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// AuthRejected logs rejected consumer or webhook authentication attempts.
func (l *Logger) AuthRejected(surface, reason, clientIP string) {
	l.Warn("auth_rejected",
		slog.String("surface", surface),
		slog.String("reason", reason),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs per-sender rate limit events
func (l *Logger) RateLimitExceeded(sender string, count, limit int) {
	l.Warn("rate_limit_exceeded",
		slog.String("sender", sender),
		slog.Int("count", count),
		slog.Int("limit", limit),
	)
}

// Decision logs a routing decision for observability. Path is one of
// mode1, mode2, or fallback_tree so agent outages are visible in logs.
func (l *Logger) Decision(path, action, intent string, confidence float64, transition string) {
	l.Info("decision",
		slog.String("decision_path", path),
		slog.String("action", action),
		slog.String("intent", intent),
		slog.Float64("confidence", confidence),
		slog.String("transition", transition),
	)
}

// SideEffectFailed logs a swallowed background side-effect failure.
func (l *Logger) SideEffectFailed(name string, err error) {
	l.Error("side_effect_failed",
		slog.String("side_effect", name),
		slog.String("error", err.Error()),
	)
}
