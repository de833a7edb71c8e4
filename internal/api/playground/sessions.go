package playground

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"finvisor/internal/api/respond"
	domainsession "finvisor/internal/domain/session"
	"finvisor/pkg/errors"
)

type sessionSummary struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type chatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content,omitempty"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionDetail struct {
	sessionSummary
	AgentID  string                 `json:"agent_id"`
	UserID   string                 `json:"user_id"`
	State    map[string]interface{} `json:"state,omitempty"`
	Messages []chatMessage          `json:"messages"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	if userID == "" {
		respond.Error(w, errors.NewValidationError("user_id", "is required", userID))
		return
	}

	sessions, err := h.deps.Sessions.ListSessions(r.Context(), chi.URLParam(r, "agent_id"), userID)
	if err != nil {
		respond.Error(w, err)
		return
	}

	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, summarize(s))
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	if userID == "" {
		respond.Error(w, errors.NewValidationError("user_id", "is required", userID))
		return
	}

	opts := &domainsession.GetOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respond.Error(w, errors.NewValidationError("limit", "must be a non-negative integer", raw))
			return
		}
		opts.NumRecentEvents = n
	}

	agentID := chi.URLParam(r, "agent_id")
	sess, err := h.deps.Sessions.GetSession(r.Context(), agentID, userID, chi.URLParam(r, "session_id"), opts)
	if err != nil {
		respond.Error(w, err)
		return
	}

	detail := sessionDetail{
		sessionSummary: summarize(sess),
		AgentID:        agentID,
		UserID:         userID,
		State:          sess.State,
		Messages:       messages(sess.Events),
	}
	if detail.Title == "" {
		for _, m := range detail.Messages {
			if m.Role == "user" {
				detail.Title = m.Content
				break
			}
		}
	}
	respond.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	err := h.deps.Sessions.DeleteSession(r.Context(), chi.URLParam(r, "agent_id"), userID, chi.URLParam(r, "session_id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func summarize(s *domainsession.Session) sessionSummary {
	return sessionSummary{
		SessionID: s.SessionID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// messages turns stored events into chat messages; tool responses and empty events are dropped
func messages(events []domainsession.Event) []chatMessage {
	out := make([]chatMessage, 0, len(events))
	for _, e := range events {
		if e.Partial {
			continue
		}
		msg := chatMessage{
			Role:      e.Role(),
			Content:   e.Text(),
			ToolCalls: e.FunctionCalls(),
			CreatedAt: e.Timestamp,
		}
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		out = append(out, msg)
	}
	return out
}
