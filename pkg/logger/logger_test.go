package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finvisor/pkg/errors"
)

type capturedError struct {
	err   error
	tags  map[string]string
	scope errors.Scope
}

type fakeTracker struct {
	captured []capturedError
}

func (f *fakeTracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	scope, _ := errors.ScopeFromContext(ctx)
	f.captured = append(f.captured, capturedError{err: err, tags: tags, scope: scope})
	return nil
}

func (f *fakeTracker) Flush(context.Context) error { return nil }

func observed() (*Logger, *observer.ObservedLogs, *fakeTracker) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracker := &fakeTracker{}
	l := New(zap.New(core))
	l.tracker = tracker
	return l, logs, tracker
}

func TestErrorWithContextReportsScope(t *testing.T) {
	l, logs, tracker := observed()

	ctx := errors.WithScope(context.Background(), errors.Scope{UserID: "u1", RunID: "r1"})
	l.With("component", "runner").ErrorWithContext(ctx, "Agent run failed", errors.ErrTimeout, map[string]string{"model": "gemini"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Agent run failed", entry.Message)
	assert.Equal(t, "runner", entry.ContextMap()["component"])
	assert.Equal(t, "gemini", entry.ContextMap()["model"])

	require.Len(t, tracker.captured, 1)
	assert.ErrorIs(t, tracker.captured[0].err, errors.ErrTimeout)
	assert.Equal(t, "r1", tracker.captured[0].scope.RunID)
}

func TestErrorfReports(t *testing.T) {
	l, logs, tracker := observed()

	l.Errorf("flush failed after %d rows", 3)
	l.Infow("not reported")

	assert.Equal(t, 2, logs.Len())
	require.Len(t, tracker.captured, 1)
	assert.EqualError(t, tracker.captured[0].err, "flush failed after 3 rows")
	assert.Equal(t, "logger", tracker.captured[0].tags["component"])
}

func TestNopWithoutTracker(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().ErrorWithContext(context.Background(), "ignored", errors.ErrInternal, nil)
	})
}
