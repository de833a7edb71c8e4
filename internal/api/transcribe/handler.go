// Package transcribe turns recorded audio into text for the chat page.
package transcribe

import (
	"context"
	"io"
	"net/http"

	"finvisor/internal/adapters/assemblyai"
	"finvisor/internal/api/respond"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const formField = "audio"

// Transcriber converts audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (*assemblyai.Transcript, error)
}

type response struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Handler struct {
	transcriber Transcriber
	maxBytes    int64
	log         *logger.Logger
}

// New creates the handler; a nil transcriber answers 503
func New(transcriber Transcriber, maxBytes int64, log *logger.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &Handler{transcriber: transcriber, maxBytes: maxBytes, log: log.With("component", "transcribe_api")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respond.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.transcriber == nil {
		respond.Error(w, errors.Wrap(errors.ErrUnavailable, "transcription is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile(formField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.JSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "audio exceeds upload limit"})
			return
		}
		respond.Error(w, errors.Wrapf(errors.ErrInvalidInput, "missing %q file: %v", formField, err))
		return
	}
	defer file.Close()

	t, err := h.transcriber.Transcribe(r.Context(), file)
	if err != nil {
		h.log.Warnw("Transcription failed", "file", header.Filename, "size", header.Size, "error", err)
		respond.Error(w, err)
		return
	}

	h.log.Debugw("Audio transcribed", "id", t.ID, "chars", len(t.Text))
	respond.JSON(w, http.StatusOK, response{ID: t.ID, Text: t.Text, Confidence: t.Confidence})
}
