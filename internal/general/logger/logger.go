package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes single-line structured entries. Every entry carries the
// service, hostname and action plus request/ride/car ids found in ctx.
type Logger struct {
	core *zap.Logger
}

// New creates a structured logger for the given service.
// level is a zap level name (debug, info, warn, error); format is json or console.
func New(service, level, format string) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	if format != "console" {
		format = "json"
	}

	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(zapLevel),
		Encoding: format,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "timestamp",
			CallerKey:      "caller",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	core, err := cfg.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		// the config above is static; a build failure means stdout is unusable
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		core = zap.NewNop()
	}

	return &Logger{core: core.With(zap.String("service", service), zap.String("hostname", hn))}
}

// NewNop returns a logger that drops everything. Used by tests.
func NewNop() *Logger {
	return &Logger{core: zap.NewNop()}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details map[string]any) {
	l.core.Debug(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details map[string]any) {
	l.core.Info(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Warn writes a WARN line for expected failures worth surfacing.
func (l *Logger) Warn(ctx context.Context, action, msg string, details map[string]any) {
	l.core.Warn(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Error writes an ERROR line and attaches the error and a stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details map[string]any) {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	fields := append(l.fields(ctx, action, details), zap.Error(err))
	l.core.Error(strings.TrimSpace(msg), fields...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.core.Sync()
}

func (l *Logger) fields(ctx context.Context, action string, details map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields, zap.String("action", safeAction(action)))
	if v := fromCtx(ctx, ctxKeyRequestID); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := fromCtx(ctx, ctxKeyRideID); v != "" {
		fields = append(fields, zap.String("ride_id", v))
	}
	if v := fromCtx(ctx, ctxKeyCarID); v != "" {
		fields = append(fields, zap.String("car_id", v))
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	return fields
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "fleet_request_id"
	ctxKeyRideID    ctxKey = "fleet_ride_id"
	ctxKeyCarID     ctxKey = "fleet_car_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	return withValue(ctx, ctxKeyRequestID, reqID)
}

// WithRideID returns a new context carrying ride_id.
func (l *Logger) WithRideID(ctx context.Context, rideID string) context.Context {
	return withValue(ctx, ctxKeyRideID, rideID)
}

// WithCarID returns a new context carrying car_id.
func (l *Logger) WithCarID(ctx context.Context, carID string) context.Context {
	return withValue(ctx, ctxKeyCarID, carID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string {
	return fromCtx(ctx, ctxKeyRequestID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if strings.TrimSpace(v) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func fromCtx(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
