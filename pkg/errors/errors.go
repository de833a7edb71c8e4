// Package errors carries the sentinel errors shared across finvisor and thin
// wrappers over the standard errors package. Callers wrap a sentinel with
// context and the HTTP layer maps it back to a status code with Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Generic failure classes
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timeout")
	ErrUnavailable       = errors.New("service unavailable")
	ErrExternal          = errors.New("external service error")
	ErrNotImplemented    = errors.New("not implemented")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Knowledge and filings
var (
	// ErrNoFilings means the provider had nothing for the ticker and filing type
	ErrNoFilings = errors.New("no filings found")

	// ErrKnowledgeNotLoaded means a search ran against an empty knowledge base
	ErrKnowledgeNotLoaded = errors.New("knowledge base not loaded")

	ErrUnknownTicker = errors.New("unknown ticker")

	// ErrLocked means another holder owns the lock, e.g. a concurrent ingestion of the same ticker
	ErrLocked = errors.New("resource is locked")
)

// ValidationError reports a single bad field. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError collects independent failures, e.g. one per ticker of a batch.
// Is and As see every collected error.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(msgs, "; "))
}

func (m *MultiError) Unwrap() []error { return m.Errors }

// Add records err; nil is ignored
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) HasErrors() bool { return len(m.Errors) > 0 }

// ToError returns nil when nothing was added
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(message string) error { return errors.New(message) }

func Newf(format string, args ...interface{}) error { return fmt.Errorf(format, args...) }

// Wrap prefixes err with message. A nil err stays nil so calls can wrap a
// return value directly.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
