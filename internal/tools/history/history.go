// Package history gives the agent read access to the whole conversation.
package history

import (
	"time"

	"google.golang.org/adk/tool"

	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// Args limits how much history is returned
type Args struct {
	NumChats int `json:"num_chats,omitempty" jsonschema:"Only return the last N messages. Default all"`
}

// NewChatHistoryTool returns the messages of the current session
func NewChatHistoryTool(deps shared.Deps) (tool.Tool, error) {
	return chatHistory(deps).Build()
}

func chatHistory(deps shared.Deps) *shared.ToolBuilder[Args] {
	return shared.NewToolBuilder(
		"get_chat_history",
		"Read the chat history of the current conversation, oldest first. Use it when the user refers to something said earlier than the recent messages you can see.",
		func(ctx tool.Context, args Args) (map[string]any, error) {
			if deps.Sessions == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "session store not configured")
			}

			sessionID := shared.CurrentSession(ctx)
			if sessionID == "" {
				return nil, errors.NewValidationError("session_id", "is required", sessionID)
			}

			sess, err := deps.Sessions.GetSession(ctx, shared.CurrentApp(ctx, deps.AppName), shared.CurrentUser(ctx), sessionID, nil)
			if err != nil {
				return nil, err
			}

			messages := make([]map[string]any, 0, len(sess.Events))
			for _, e := range sess.Events {
				text := e.Text()
				if text == "" || e.Partial {
					continue
				}
				messages = append(messages, map[string]any{
					"role":      e.Role(),
					"content":   text,
					"timestamp": e.Timestamp.Format(time.RFC3339),
				})
			}
			if args.NumChats > 0 && len(messages) > args.NumChats {
				messages = messages[len(messages)-args.NumChats:]
			}

			return map[string]any{"session_id": sessionID, "messages": messages}, nil
		},
		deps,
	).
		WithTimeout(10*time.Second).
		WithStats()
}
