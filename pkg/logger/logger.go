// Package logger is the process-wide zap logger. Errors logged through it
// are also handed to the configured error tracker.
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"finvisor/pkg/errors"
)

var (
	mu     sync.RWMutex
	global *Logger
)

// Logger is a zap.SugaredLogger that reports Error level calls to a tracker
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
}

// New wraps an existing zap logger
func New(z *zap.Logger) *Logger {
	return &Logger{SugaredLogger: z.Sugar()}
}

// Init builds the global logger. env "production" logs JSON, anything else
// logs colored console lines. An unknown level falls back to info.
func Init(level, env string) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return errors.Wrap(err, "build logger")
	}

	mu.Lock()
	global = New(z)
	mu.Unlock()
	return nil
}

// SetErrorTracker attaches tracker to the global logger. Children created
// with With before this call do not see it.
func SetErrorTracker(tracker errors.Tracker) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.tracker = tracker
	}
}

// Get returns the global logger, creating a development one on first use
func Get() *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		z, _ := zap.NewDevelopment()
		global = New(z)
	}
	return global
}

// Nop discards everything
func Nop() *Logger {
	return New(zap.NewNop())
}

func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), tracker: l.tracker}
}

func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.report(context.Background(), errors.New(fmt.Sprint(args...)), nil)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.report(context.Background(), fmt.Errorf(template, args...), nil)
}

// ErrorWithContext logs msg with err and tags, then reports err together
// with the run scope attached to ctx
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, tags map[string]string) {
	kv := make([]interface{}, 0, 2+2*len(tags))
	kv = append(kv, "error", err)
	for k, v := range tags {
		kv = append(kv, k, v)
	}
	l.SugaredLogger.Errorw(msg, kv...)
	l.report(ctx, err, tags)
}

func (l *Logger) report(ctx context.Context, err error, tags map[string]string) {
	if l.tracker == nil || err == nil {
		return
	}
	if tags == nil {
		tags = map[string]string{"component": "logger"}
	}
	_ = l.tracker.CaptureError(ctx, err, tags)
}

// Sync flushes the global logger
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Sync()
}
