package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nstogner/supportchat/pkg/auth"
	"github.com/nstogner/supportchat/pkg/channel"
	"github.com/nstogner/supportchat/pkg/chat"
	"github.com/nstogner/supportchat/pkg/domain"
	"github.com/nstogner/supportchat/pkg/llm"
	"github.com/nstogner/supportchat/pkg/store"
)

// --- Chat ---

type sendMessageRequest struct {
	Message   string       `json:"message"`
	SessionID string       `json:"sessionId,omitempty"`
	Channel   channel.Type `json:"channel,omitempty"`
}

type sendMessageResponse struct {
	Success    bool      `json:"success"`
	Reply      string    `json:"reply"`
	SessionID  string    `json:"sessionId"`
	MessageID  string    `json:"messageId"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed *int      `json:"tokensUsed,omitempty"`
}

type sendMessageFailure struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error"`
	Kind      llm.Kind `json:"kind"`
	Retryable bool     `json:"retryable"`
	SessionID string   `json:"sessionId"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, s.schemas.chatMessage, &req) {
		return
	}

	res, err := s.cfg.Chat.HandleMessage(r.Context(), chat.Input{
		ConversationID: req.SessionID,
		Text:           req.Message,
		Channel:        req.Channel,
	})
	status, body := messageResult(res, err)
	if status == http.StatusInternalServerError && err != nil {
		s.errorResponse(w, status, "Failed to process message", err)
		return
	}
	s.jsonResponse(w, status, body)
}

// messageResult maps a HandleMessage result to the response status and body
// shared by the REST and websocket transports.
func messageResult(res *chat.Result, err error) (int, any) {
	if err != nil {
		var verr *chat.ValidationError
		if errors.As(err, &verr) {
			return http.StatusBadRequest, errorBody{Success: false, Error: verr.Reason}
		}
		return http.StatusInternalServerError, errorBody{Success: false, Error: "Failed to process message"}
	}
	if res.Failure != nil {
		return http.StatusInternalServerError, sendMessageFailure{
			Success:   false,
			Error:     res.Failure.Message,
			Kind:      res.Failure.Kind,
			Retryable: res.Failure.Retryable,
			SessionID: res.ConversationID,
		}
	}
	return http.StatusOK, sendMessageResponse{
		Success:    true,
		Reply:      res.Reply.Text,
		SessionID:  res.ConversationID,
		MessageID:  res.Reply.ID,
		Timestamp:  res.Reply.CreatedAt,
		TokensUsed: res.TokensUsed,
	}
}

type historyMessage struct {
	ID        string        `json:"id"`
	Sender    domain.Sender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversationId")
	if _, err := uuid.Parse(id); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid conversation ID", nil)
		return
	}

	msgs, err := s.cfg.Chat.History(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "Conversation not found", nil)
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to fetch conversation history", err)
		return
	}

	out := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyMessage{ID: m.ID, Sender: m.Sender, Text: m.Text, Timestamp: m.CreatedAt})
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success":        true,
		"conversationId": id,
		"messages":       out,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"success":   true,
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	if r.URL.Query().Get("deep") == "" {
		s.jsonResponse(w, http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.DeepHealthTimeout)
	defer cancel()
	healthy := s.cfg.Assistant.Health(ctx)
	body["llm"] = healthy
	if s.cfg.Database != nil {
		err := s.cfg.Database.Ping(ctx)
		if err != nil {
			slog.Warn("Database health check failed", "error", err)
		}
		body["database"] = err == nil
		healthy = healthy && err == nil
	}
	if !healthy {
		body["success"] = false
		body["status"] = "degraded"
		s.jsonResponse(w, http.StatusServiceUnavailable, body)
		return
	}
	s.jsonResponse(w, http.StatusOK, body)
}

type statsResponse struct {
	llm.Stats
	Configured bool `json:"configured"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   statsResponse{Stats: s.cfg.Assistant.Stats(), Configured: s.cfg.Configured},
	})
}

// --- Auth ---

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type authResponse struct {
	Success bool        `json:"success"`
	User    domain.User `json:"user"`
	Token   string      `json:"token,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !s.decode(w, r, s.schemas.login, &req) {
		return
	}
	user, token, err := s.cfg.Users.Login(req.Username, req.Password)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, authResponse{Success: true, User: user, Token: token})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !s.decode(w, r, s.schemas.signup, &req) {
		return
	}
	user, token, err := s.cfg.Users.Signup(req.Username, req.Password, req.Name)
	if errors.Is(err, auth.ErrUserExists) {
		s.errorResponse(w, http.StatusConflict, "Username already exists", nil)
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Internal server error", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, authResponse{Success: true, User: user, Token: token})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	// The token is the only field and any malformed body is treated as a
	// missing token.
	_ = decodeBody(w, r, s.schemas.verify, &req)
	user, err := s.cfg.Users.Verify(req.Token)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Invalid token", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, authResponse{Success: true, User: user})
}

// --- Misc ---

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"message": "AI Live Chat API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /api/chat/health",
			"sendMessage": "POST /api/chat/message",
			"getHistory":  "GET /api/chat/history/:conversationId",
			"stats":       "GET /api/chat/stats",
			"websocket":   "GET /api/chat/ws",
			"metrics":     "GET /metrics",
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, http.StatusNotFound, "Route not found", nil)
}

// decode validates and decodes the body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, v any) bool {
	err := decodeBody(w, r, schema, v)
	if err == nil {
		return true
	}
	var bad *badRequest
	if errors.As(err, &bad) {
		s.errorResponse(w, http.StatusBadRequest, bad.msg, nil)
		return false
	}
	s.errorResponse(w, http.StatusBadRequest, "Invalid request body", err)
	return false
}
