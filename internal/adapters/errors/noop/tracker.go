// Package noop provides the tracker used when error reporting is disabled.
package noop

import "context"

type Tracker struct{}

func New() *Tracker { return &Tracker{} }

func (*Tracker) CaptureError(context.Context, error, map[string]string) error { return nil }
func (*Tracker) Flush(context.Context) error                                  { return nil }
