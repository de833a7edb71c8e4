package events

import (
	"fmt"
	"strings"
	"time"
)

// Event types carried in Envelope.Type
const (
	TypeIngestRequested = "filings.ingest_requested"
	TypeIngestCompleted = "filings.ingest_completed"
	TypeIngestFailed    = "filings.ingest_failed"
)

// Envelope wraps every published payload
type Envelope[T any] struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Payload   T         `json:"payload"`
}

// NewEnvelope creates an envelope with defaults
func NewEnvelope[T any](eventType, source string, payload T) Envelope[T] {
	return Envelope[T]{
		ID:        generateEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Version:   "1.0",
		Payload:   payload,
	}
}

// generateEventID generates a unique event ID
func generateEventID() string {
	// Format: timestamp_nanoseconds
	now := time.Now()
	return fmt.Sprintf("%d_%d", now.Unix(), now.Nanosecond())
}

// SanitizeUTF8 drops invalid UTF-8 sequences. Error texts from remote
// services can carry raw bytes that JSON consumers reject.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
