// Package logging builds the zap loggers used by the portal and the CLI.
package logging

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Off is a level above every level zap emits; a logger at Off writes nothing.
const Off = zapcore.FatalLevel + 1

// ParseLevel reads one of debug|info|warn|error|off (case insensitive).
//
// Empty string is warn. Unknown values are also warn, with ok = false.
func ParseLevel(level string) (lv zapcore.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "off":
		return Off, true
	default:
		return zapcore.WarnLevel, false
	}
}

// New creates a console logger writing to w.
//
// Timestamps are RFC3339 in UTC.
// When level is unknown, the logger falls back to warn and says so.
func New(w io.Writer, level string) *zap.Logger {
	lv, ok := ParseLevel(level)

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}
	config.EncodeLevel = zapcore.CapitalLevelEncoder

	l := zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(lv),
	))
	if !ok {
		l.Warn("unknown loglevel. fall-backed to warn", zap.String("loglevel", level))
	}
	return l
}

type loggerContextKey struct{}

// NewContext returns a new context with log added.
func NewContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, log)
}

// FromContext returns the logger in ctx, or a no-op logger if there is none.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
