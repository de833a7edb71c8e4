package playground

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"finvisor/internal/agents"
	"finvisor/internal/metrics"
)

const maxWSMessageBytes = 64 << 10

// wsRequest is one chat message sent over the socket
type wsRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.deps.AllowedOrigins) == 0 || slices.Contains(h.deps.AllowedOrigins, "*") {
				return true
			}
			return slices.Contains(h.deps.AllowedOrigins, origin)
		},
	}
}

// handleWebSocket runs every received message and streams its events back as JSON frames.
// Runs of one connection are sequential; closing the socket cancels the current run.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessageBytes)

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	agentID := chi.URLParam(r, "agent_id")
	requests := make(chan wsRequest)

	go func() {
		defer cancel()
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			if !h.streamToSocket(ctx, conn, agentID, req) {
				return
			}
		}
	}
}

func (h *Handler) streamToSocket(ctx context.Context, conn *websocket.Conn, agentID string, req wsRequest) bool {
	userID := req.UserID
	if userID == "" {
		userID = h.deps.DefaultUserID
	}

	in := agents.RunInput{
		AgentID:   agentID,
		UserID:    userID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Stream:    true,
		ModelID:   req.Model,
	}
	for ev := range h.deps.Runner.Run(ctx, in) {
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Debugw("WebSocket write failed", "run_id", ev.RunID, "error", err)
			return false
		}
	}
	return true
}
