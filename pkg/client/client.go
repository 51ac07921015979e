// Package client is a Go client for the supportchat REST API. Requests are
// retried on network failures, timeouts, 5xx and 429 responses with the same
// exponential backoff shape the server uses for its model calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nstogner/supportchat/pkg/domain"
	"github.com/nstogner/supportchat/pkg/llm"
)

// Kind is the client-side failure taxonomy.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindServer    Kind = "server"
	KindRateLimit Kind = "rate_limit"
	KindClient    Kind = "client"
)

const (
	timeoutMessage   = "Request timed out. Please try again."
	networkMessage   = "Unable to reach the server. Please check your connection."
	cancelledMessage = "Request was cancelled."
)

// APIError describes a failed request after retries are exhausted.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Retryable  bool
	// SessionID is echoed by the server on failed sends so the caller can
	// keep the conversation.
	SessionID string
	// UpstreamKind is the server's classification of a model failure.
	UpstreamKind string

	Err error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// RetryEvent is reported before each backoff sleep.
type RetryEvent struct {
	// Attempt is the 1-based number of the attempt about to be made.
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Client talks to a supportchat server.
type Client struct {
	cfg      Config
	http     *http.Client
	shape    *llm.Backoff
	newTimer func() backoff.Timer
	onRetry  func(RetryEvent)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackoff replaces the delay schedule between attempts.
func WithBackoff(b *llm.Backoff) Option {
	return func(c *Client) { c.shape = b }
}

// WithTimer supplies the timer used for backoff sleeps.
func WithTimer(fn func() backoff.Timer) Option {
	return func(c *Client) { c.newTimer = fn }
}

// WithRetryNotify registers a callback invoked before each retry.
func WithRetryNotify(fn func(RetryEvent)) Option {
	return func(c *Client) { c.onRetry = fn }
}

// New creates a Client. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:   cfg,
		http:  http.DefaultClient,
		shape: llm.DefaultBackoff(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendResult is a successful reply.
type SendResult struct {
	Reply      string    `json:"reply"`
	SessionID  string    `json:"sessionId"`
	MessageID  string    `json:"messageId"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed *int      `json:"tokensUsed,omitempty"`
}

// SendMessage posts a user message. An empty sessionID starts a new
// conversation.
func (c *Client) SendMessage(ctx context.Context, message, sessionID string) (*SendResult, error) {
	body := map[string]string{"message": message}
	if sessionID != "" {
		body["sessionId"] = sessionID
	}

	var out SendResult
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/api/chat/message",
		body:      body,
		timeout:   c.cfg.SendTimeout,
		retryable: retryServerOrRateLimit,
		fallback:  func(status int) string { return fmt.Sprintf("Server error: %d", status) },
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// HistoryMessage is one entry of a conversation transcript.
type HistoryMessage struct {
	ID        string        `json:"id"`
	Sender    domain.Sender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}

// History is a conversation transcript.
type History struct {
	ConversationID string           `json:"conversationId"`
	Messages       []HistoryMessage `json:"messages"`
}

// GetHistory fetches a conversation transcript. Network failures, 5xx and
// 429 responses are retried.
func (c *Client) GetHistory(ctx context.Context, conversationID string) (*History, error) {
	var out History
	err := c.do(ctx, call{
		method:    http.MethodGet,
		path:      "/api/chat/history/" + url.PathEscape(conversationID),
		timeout:   c.cfg.SendTimeout,
		retryable: retryServerOrRateLimit,
		fallback:  func(int) string { return "Failed to fetch conversation history" },
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckHealth makes a single health request and reports whether it succeeded.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/chat/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("Health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type authResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// Login exchanges credentials for a user and token.
func (c *Client) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// Signup registers a new user.
func (c *Client) Signup(ctx context.Context, username, password, name string) (domain.User, string, error) {
	return c.authenticate(ctx, "/api/auth/signup", map[string]string{
		"username": username,
		"password": password,
		"name":     name,
	})
}

// Verify resolves a token to its user.
func (c *Client) Verify(ctx context.Context, token string) (domain.User, error) {
	u, _, err := c.authenticate(ctx, "/api/auth/verify", map[string]string{"token": token})
	return u, err
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (domain.User, string, error) {
	var out authResult
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      path,
		body:      body,
		timeout:   c.cfg.SendTimeout,
		retryable: retryServerOrRateLimit,
		fallback:  func(status int) string { return fmt.Sprintf("Server error: %d", status) },
	}, &out)
	if err != nil {
		return domain.User{}, "", err
	}
	return out.User, out.Token, nil
}

// --- retry loop ---

type call struct {
	method    string
	path      string
	body      any
	timeout   time.Duration
	retryable func(status int) bool
	fallback  func(status int) string
}

func retryServer(status int) bool { return status >= 500 && status < 600 }

func retryServerOrRateLimit(status int) bool {
	return retryServer(status) || status == http.StatusTooManyRequests
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// do runs one logical request with up to MaxAttempts HTTP attempts.
func (c *Client) do(ctx context.Context, req call, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		err := c.once(ctx, req, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, d time.Duration) {
		slog.Info("Retrying request",
			"path", req.path,
			"attempt", attempt+1,
			"maxAttempts", c.cfg.MaxAttempts,
			"delay", d,
			"error", err,
		)
		if c.onRetry != nil {
			c.onRetry(RetryEvent{Attempt: attempt + 1, MaxAttempts: c.cfg.MaxAttempts, Delay: d, Err: err})
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&shapeBackOff{shape: c.shape}, uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)
	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(op, b, notify, timer)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if ctx.Err() != nil {
		return &APIError{Kind: KindNetwork, Message: cancelledMessage, Err: err}
	}
	return err
}

// once performs a single HTTP attempt under its own timeout.
func (c *Client) once(ctx context.Context, req call, payload []byte, out any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method, c.cfg.BaseURL+req.path, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return &APIError{Kind: KindNetwork, Message: cancelledMessage, Err: ctx.Err()}
		case errors.Is(err, context.DeadlineExceeded):
			return &APIError{Kind: KindNetwork, Message: timeoutMessage, Retryable: true, Err: err}
		default:
			return &APIError{Kind: KindNetwork, Message: networkMessage, Retryable: true, Err: err}
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &APIError{Kind: KindNetwork, Message: timeoutMessage, Retryable: true, Err: err}
		}
		return &APIError{Kind: KindNetwork, Message: networkMessage, Retryable: true, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	var eb struct {
		Error     string `json:"error"`
		Kind      string `json:"kind"`
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(data, &eb)
	msg := eb.Error
	if msg == "" {
		msg = req.fallback(resp.StatusCode)
	}
	return &APIError{
		Kind:         kindForStatus(resp.StatusCode),
		StatusCode:   resp.StatusCode,
		Message:      msg,
		Retryable:    req.retryable(resp.StatusCode),
		SessionID:    eb.SessionID,
		UpstreamKind: eb.Kind,
	}
}

// shapeBackOff adapts llm.Backoff to the backoff.BackOff interface.
type shapeBackOff struct {
	shape *llm.Backoff
	n     int
}

func (s *shapeBackOff) NextBackOff() time.Duration {
	d := s.shape.Delay(s.n)
	s.n++
	return d
}

func (s *shapeBackOff) Reset() { s.n = 0 }
