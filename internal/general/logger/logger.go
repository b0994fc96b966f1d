package logger

import (
	"context"
	"errors"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes one JSON line per event with the fields every service log
// carries: service, hostname, action and, when present in ctx, request_id
// and ride_id.
type Logger struct {
	zl *zap.Logger
}

// New creates a structured JSON logger for the given service writing to
// stdout at the given level (debug|info|warn|error, default info).
func New(service, level string) *Logger {
	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.MessageKey = "message"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoder),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(ParseLevel(level)),
	)
	return NewWithCore(service, core)
}

// NewWithCore builds a Logger on an arbitrary core, e.g. a zaptest observer.
func NewWithCore(service string, core zapcore.Core) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	zl := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hn),
	)
	return &Logger{zl: zl}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// ParseLevel maps a config string to a zap level; unknown values mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.zl.Debug(strings.TrimSpace(msg), fields(ctx, action, details)...)
}

func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.zl.Info(strings.TrimSpace(msg), fields(ctx, action, details)...)
}

func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.zl.Warn(strings.TrimSpace(msg), fields(ctx, action, details)...)
}

// Error writes an ERROR line and attaches the error message and stack.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = errors.New("unknown error")
	}
	fs := append(fields(ctx, action, details), zap.Object("error", errorObject{
		msg:   strings.TrimSpace(err.Error()),
		stack: string(debug.Stack()),
	}))
	l.zl.Error(strings.TrimSpace(msg), fs...)
}

// Sync flushes buffered entries. Errors from syncing stdout are ignored.
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

type errorObject struct {
	msg   string
	stack string
}

func (e errorObject) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", e.msg)
	enc.AddString("stack", e.stack)
	return nil
}

func fields(ctx context.Context, action string, details any) []zap.Field {
	fs := make([]zap.Field, 0, 4)
	fs = append(fs, zap.String("action", safeAction(action)))
	if id := RequestID(ctx); id != "" {
		fs = append(fs, zap.String("request_id", id))
	}
	if id := RideID(ctx); id != "" {
		fs = append(fs, zap.String("ride_id", id))
	}
	if details != nil {
		fs = append(fs, zap.Any("details", details))
	}
	return fs
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "ridehail_request_id"
	ctxKeyRideID    ctxKey = "ridehail_ride_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithRideID returns a new context carrying ride_id.
func (l *Logger) WithRideID(ctx context.Context, rideID string) context.Context {
	if strings.TrimSpace(rideID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRideID, rideID)
}

// RequestID extracts request_id from ctx (if any).
func RequestID(ctx context.Context) string {
	return ctxString(ctx, ctxKeyRequestID)
}

// RideID extracts ride_id from ctx (if any).
func RideID(ctx context.Context) string {
	return ctxString(ctx, ctxKeyRideID)
}

func ctxString(ctx context.Context, key ctxKey) string {
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
