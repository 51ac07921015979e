package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nstogner/supportchat/pkg/channel"
	"github.com/nstogner/supportchat/pkg/chat"
	"github.com/nstogner/supportchat/pkg/llm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event types pushed to websocket clients.
const (
	EventRetrying = "retrying"
	EventReply    = "reply"
	EventError    = "error"
)

type wsRequest struct {
	Message   string       `json:"message"`
	SessionID string       `json:"sessionId,omitempty"`
	Channel   channel.Type `json:"channel,omitempty"`
}

type wsEvent struct {
	Type   string `json:"type"`
	Status int    `json:"status,omitempty"`
	// Payload is the REST response body for reply and error events.
	Payload any `json:"payload,omitempty"`
	// Retry details for retrying events.
	Attempt     int      `json:"attempt,omitempty"`
	MaxAttempts int      `json:"maxAttempts,omitempty"`
	DelayMs     int64    `json:"delayMs,omitempty"`
	Kind        llm.Kind `json:"kind,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// handleChatWebSocket processes one message at a time per connection and
// pushes retry progress before the final reply or error.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	for {
		var req wsRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}

		res, err := s.cfg.Chat.HandleMessage(r.Context(), chat.Input{
			ConversationID: req.SessionID,
			Text:           req.Message,
			Channel:        req.Channel,
			OnRetry: func(e llm.RetryEvent) {
				// Generate runs on this goroutine, so writes never overlap.
				if err := ws.WriteJSON(wsEvent{
					Type:        EventRetrying,
					Attempt:     e.Attempt,
					MaxAttempts: e.MaxAttempts,
					DelayMs:     e.Delay.Milliseconds(),
					Kind:        e.Classification.Kind,
					Message:     e.Classification.Message,
				}); err != nil {
					slog.Warn("Failed to push retry event", "error", err)
				}
			},
		})
		if err != nil {
			slog.Log(r.Context(), messageErrorLevel(err), "WebSocket message failed", "error", err)
		}

		status, body := messageResult(res, err)
		event := wsEvent{Type: EventReply, Status: status, Payload: body}
		if status != http.StatusOK {
			event.Type = EventError
		}
		if err := ws.WriteJSON(event); err != nil {
			slog.Error("WebSocket write error", "error", err)
			return
		}
	}
}

// messageErrorLevel keeps rejected user input out of the error log.
func messageErrorLevel(err error) slog.Level {
	var verr *chat.ValidationError
	if errors.As(err, &verr) {
		return slog.LevelDebug
	}
	return slog.LevelError
}
