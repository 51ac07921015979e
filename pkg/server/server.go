// Package server exposes the chat service over REST and websocket.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nstogner/supportchat/pkg/auth"
	"github.com/nstogner/supportchat/pkg/chat"
	"github.com/nstogner/supportchat/pkg/llm"
)

// Assistant is the part of the invoker the server reports on.
type Assistant interface {
	Health(ctx context.Context) bool
	Stats() llm.Stats
}

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the dependencies of a Server.
type Config struct {
	Chat      *chat.Service
	Users     *auth.Directory
	Assistant Assistant
	// Database is checked by /api/chat/health?deep=1 when set.
	Database Pinger
	// Configured reports whether the LLM provider has credentials.
	Configured bool
	// Registerer and Gatherer back the request metrics and /metrics. Nil
	// means the prometheus defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// DeepHealthTimeout bounds the dependency checks of /api/chat/health?deep=1.
	DeepHealthTimeout time.Duration
}

// Server serves the REST and websocket API.
type Server struct {
	cfg     Config
	metrics *httpMetrics
	schemas *schemas
	srv     *http.Server
}

// New creates a new Server.
func New(cfg Config) *Server {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.DeepHealthTimeout <= 0 {
		cfg.DeepHealthTimeout = 10 * time.Second
	}
	return &Server{
		cfg:     cfg,
		metrics: newHTTPMetrics("supportchat", cfg.Registerer),
		schemas: mustCompileSchemas(),
	}
}

// Handler returns the routed HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /api/chat/message", s.handleSendMessage)
	mux.HandleFunc("GET /api/chat/history/{conversationId}", s.handleGetHistory)
	mux.HandleFunc("GET /api/chat/health", s.handleHealth)
	mux.HandleFunc("GET /api/chat/stats", s.handleStats)

	// WebSocket
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWebSocket)

	// Auth
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("/", s.handleNotFound)

	return s.metrics.middleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting web server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse writes the {success:false, error} envelope. msg is shown to
// the caller; err, when set, is only logged.
func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		slog.Error("API Error", "status", status, "error", err)
	}
	s.jsonResponse(w, status, errorBody{Success: false, Error: msg})
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
