// Package sentry reports captured errors to Sentry.
package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"finvisor/pkg/errors"
)

// Tracker sends errors through a Sentry hub
type Tracker struct {
	hub *sentry.Hub
}

// New initializes the Sentry client for dsn
func New(dsn, environment, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sentry init")
	}
	return NewWithHub(sentry.CurrentHub()), nil
}

// NewWithHub wraps an existing hub
func NewWithHub(hub *sentry.Hub) *Tracker {
	return &Tracker{hub: hub}
}

// CaptureError reports err with tags. The run scope from ctx, when present,
// sets the Sentry user and a "run" context.
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if err == nil {
		return nil
	}

	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if s, ok := errors.ScopeFromContext(ctx); ok {
			scope.SetTags(s.Tags())
			if s.UserID != "" {
				scope.SetUser(sentry.User{ID: s.UserID})
			}
			scope.SetContext("run", sentry.Context{
				"agent_id":   s.AgentID,
				"session_id": s.SessionID,
				"run_id":     s.RunID,
			})
		}
		scope.SetTags(tags)
	})

	hub.CaptureException(err)
	return nil
}

// Flush waits for pending events until ctx ends, or 2s without a deadline
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.hub.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}
