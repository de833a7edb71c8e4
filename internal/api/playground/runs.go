package playground

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"finvisor/internal/agents"
	"finvisor/internal/api/respond"
	"finvisor/pkg/errors"
)

const maxFormMemory = 1 << 20

// runRequest is the body of POST /agents/{agent_id}/runs
type runRequest struct {
	Message   string `json:"message"`
	Stream    *bool  `json:"stream,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// parseRunRequest accepts JSON, urlencoded and multipart bodies. Streaming is on unless disabled.
func parseRunRequest(r *http.Request) (runRequest, bool, error) {
	var (
		req runRequest
		err error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false, errors.Wrapf(errors.ErrInvalidInput, "invalid JSON body: %v", err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return req, false, errors.Wrapf(errors.ErrInvalidInput, "invalid form: %v", err)
		}
		if req, err = formRequest(r); err != nil {
			return req, false, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return req, false, errors.Wrapf(errors.ErrInvalidInput, "invalid form: %v", err)
		}
		if req, err = formRequest(r); err != nil {
			return req, false, err
		}
	}

	stream := req.Stream == nil || *req.Stream
	return req, stream, nil
}

func formRequest(r *http.Request) (runRequest, error) {
	req := runRequest{
		Message:   r.FormValue("message"),
		UserID:    r.FormValue("user_id"),
		SessionID: r.FormValue("session_id"),
		Model:     r.FormValue("model"),
	}
	if raw := r.FormValue("stream"); raw != "" {
		stream, err := strconv.ParseBool(raw)
		if err != nil {
			return req, errors.NewValidationError("stream", "must be a boolean", raw)
		}
		req.Stream = &stream
	}
	return req, nil
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	req, stream, err := parseRunRequest(r)
	if err != nil {
		respond.Error(w, err)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = h.deps.DefaultUserID
	}

	in := agents.RunInput{
		AgentID:   chi.URLParam(r, "agent_id"),
		UserID:    userID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Stream:    stream,
		ModelID:   req.Model,
	}

	if !stream {
		result, err := h.deps.Runner.RunSync(r.Context(), in)
		if err != nil {
			h.log.Warnw("Run failed", "agent", in.AgentID, "user_id", in.UserID, "error", err)
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, result)
		return
	}

	h.streamRun(w, r, in)
}

// streamRun writes run events as server-sent events
func (h *Handler) streamRun(w http.ResponseWriter, r *http.Request, in agents.RunInput) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, errors.Wrap(errors.ErrNotImplemented, "streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for ev := range h.deps.Runner.Run(r.Context(), in) {
		if err := writeSSE(w, ev); err != nil {
			h.log.Debugw("Client went away during stream", "run_id", ev.RunID, "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev agents.RunEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
	return err
}
