package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/supportchat/pkg/auth"
	"github.com/nstogner/supportchat/pkg/channel"
	"github.com/nstogner/supportchat/pkg/chat"
	"github.com/nstogner/supportchat/pkg/llm"
	"github.com/nstogner/supportchat/pkg/store/sqlite"
)

// stubCompleter returns queued results, then repeats the last one.
type stubCompleter struct {
	mu      sync.Mutex
	results []error
	reply   string
	n       int
}

func (c *stubCompleter) Name() string { return "stub" }

func (c *stubCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.n
	c.n++
	if i < len(c.results) && c.results[i] != nil {
		return nil, c.results[i]
	}
	return &llm.CompletionResponse{Content: c.reply}, nil
}

func (c *stubCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestServer(t *testing.T, completer llm.Completer) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, completer, nil)
}

// newTestServerWith lets a test replace the database health check.
func newTestServerWith(t *testing.T, completer llm.Completer, db Pinger) *httptest.Server {
	t.Helper()
	st, err := sqlite.New(t.TempDir() + "/server.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	opts := llm.DefaultOptions()
	opts.Timeout = time.Second
	inv := llm.NewInvoker(completer, opts, llm.WithSleep(noSleep))

	if db == nil {
		db = st
	}
	reg := prometheus.NewRegistry()
	srv := New(Config{
		Chat:       chat.New(st, inv, channel.DefaultRegistry(2000), opts.HistoryWindow),
		Users:      auth.NewDirectory(),
		Assistant:  inv,
		Database:   db,
		Configured: true,
		Registerer: reg,
		Gatherer:   reg,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSendMessage(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{reply: "Hi there!"})

	resp, body := postJSON(t, ts.URL+"/api/chat/message", map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Hi there!", body["reply"])
	assert.NotEmpty(t, body["messageId"])
	assert.NotEmpty(t, body["timestamp"])

	sessionID, _ := body["sessionId"].(string)
	_, err := uuid.Parse(sessionID)
	require.NoError(t, err)

	resp, body = postJSON(t, ts.URL+"/api/chat/message", map[string]string{"message": "Again", "sessionId": sessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, body["sessionId"])

	resp, body = getJSON(t, ts.URL+"/api/chat/history/"+sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs, _ := body["messages"].([]any)
	require.Len(t, msgs, 4)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "user", first["sender"])
	assert.Equal(t, "Hello", first["text"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["sender"])
}

func TestSendMessageValidation(t *testing.T) {
	stub := &stubCompleter{reply: "unused"}
	ts := newTestServer(t, stub)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing message", map[string]string{}, "Message cannot be empty"},
		{"empty message", map[string]string{"message": ""}, "Message cannot be empty"},
		{"blank message", map[string]string{"message": "   "}, "Message cannot be empty"},
		{"too long", map[string]string{"message": strings.Repeat("a", 2001)}, "Message cannot exceed 2000 characters"},
		{"bad session", map[string]string{"message": "hi", "sessionId": "abc"}, "Invalid session ID"},
		{"wrong type", map[string]any{"message": 42}, "Message cannot be empty"},
		{"unknown channel", map[string]string{"message": "hi", "channel": "fax"}, "unsupported channel: fax (supported: web, whatsapp)"},
		{"not an object", `[1,2]`, "Invalid request body"},
		{"invalid json", `{"message":`, "Invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.URL+"/api/chat/message", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.want, body["error"])
		})
	}
	assert.Zero(t, stub.calls())
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	stub := &stubCompleter{results: []error{&llm.APIError{StatusCode: 401, Message: "bad key sk-secret"}}}
	ts := newTestServer(t, stub)

	resp, body := postJSON(t, ts.URL+"/api/chat/message", map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Authentication failed. Please contact support.", body["error"])
	assert.Equal(t, "invalid_key", body["kind"])
	assert.Equal(t, false, body["retryable"])
	assert.NotEmpty(t, body["sessionId"])
	assert.Equal(t, 1, stub.calls())
}

func TestSendMessageRetriesThenSucceeds(t *testing.T) {
	rateLimited := &llm.APIError{StatusCode: 429}
	stub := &stubCompleter{results: []error{rateLimited, rateLimited}, reply: "done"}
	ts := newTestServer(t, stub)

	resp, body := postJSON(t, ts.URL+"/api/chat/message", map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", body["reply"])
	assert.Equal(t, 3, stub.calls())
}

func TestGetHistoryErrors(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{reply: "x"})

	resp, body := getJSON(t, ts.URL+"/api/chat/history/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid conversation ID", body["error"])

	resp, body = getJSON(t, ts.URL+"/api/chat/history/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Conversation not found", body["error"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{reply: "Hello!"})

	resp, body := getJSON(t, ts.URL+"/api/chat/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotContains(t, body, "llm")

	resp, body = getJSON(t, ts.URL+"/api/chat/health?deep=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["llm"])
	assert.Equal(t, true, body["database"])
}

type downDatabase struct{}

func (downDatabase) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealthDeepDatabaseDown(t *testing.T) {
	stub := &stubCompleter{reply: "Hello!"}
	ts := newTestServerWith(t, stub, downDatabase{})

	resp, body := getJSON(t, ts.URL+"/api/chat/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "database")

	resp, body = getJSON(t, ts.URL+"/api/chat/health?deep=1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["llm"])
	assert.Equal(t, false, body["database"])
}

func TestHealthDeepDegraded(t *testing.T) {
	stub := &stubCompleter{results: []error{&llm.APIError{StatusCode: 503}}}
	ts := newTestServer(t, stub)

	resp, body := getJSON(t, ts.URL+"/api/chat/health?deep=1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["llm"])
	assert.Equal(t, 1, stub.calls())
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{})

	resp, body := getJSON(t, ts.URL+"/api/chat/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, "stub", stats["provider"])
	assert.Equal(t, llm.DefaultModel, stats["model"])
	assert.Equal(t, float64(500), stats["maxTokens"])
	assert.Equal(t, float64(3), stats["maxRetries"])
	assert.Equal(t, float64(1000), stats["timeout"])
	assert.Equal(t, true, stats["configured"])
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{})

	resp, body := postJSON(t, ts.URL+"/api/auth/login", map[string]string{"username": "demo", "password": "demo123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dummy-token-3", body["token"])
	assert.Equal(t, "Demo User", body["user"].(map[string]any)["name"])

	resp, body = postJSON(t, ts.URL+"/api/auth/login", map[string]string{"username": "demo", "password": "wrong12"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid username or password", body["error"])

	resp, body = postJSON(t, ts.URL+"/api/auth/login", map[string]string{"username": "de", "password": "demo123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Username must be at least 3 characters", body["error"])

	resp, body = postJSON(t, ts.URL+"/api/auth/signup", map[string]string{"username": "newbie", "password": "secret1", "name": "New"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := body["token"].(string)

	resp, body = postJSON(t, ts.URL+"/api/auth/signup", map[string]string{"username": "newbie", "password": "secret1", "name": "New"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Username already exists", body["error"])

	resp, body = postJSON(t, ts.URL+"/api/auth/signup", map[string]string{"username": "other", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Name must be at least 2 characters", body["error"])

	resp, body = postJSON(t, ts.URL+"/api/auth/verify", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "newbie", body["user"].(map[string]any)["username"])

	resp, _ = postJSON(t, ts.URL+"/api/auth/verify", map[string]string{"token": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = postJSON(t, ts.URL+"/api/auth/verify", `garbage`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIndexNotFoundAndCORS(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{})

	resp, body := getJSON(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AI Live Chat API", body["message"])

	resp, body = getJSON(t, ts.URL+"/api/nothing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Route not found", body["error"])

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat/message", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubCompleter{})
	getJSON(t, ts.URL+"/api/chat/health")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), `supportchat_http_requests_total{route="GET /api/chat/health",status="200"} 1`)
}

func TestChatWebSocket(t *testing.T) {
	rateLimited := &llm.APIError{StatusCode: 429}
	ts := newTestServer(t, &stubCompleter{results: []error{rateLimited}, reply: "Hi there!"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]string{"message": "Hello"}))

	var retry map[string]any
	require.NoError(t, ws.ReadJSON(&retry))
	assert.Equal(t, EventRetrying, retry["type"])
	assert.Equal(t, float64(1), retry["attempt"])
	assert.Equal(t, "rate_limit", retry["kind"])

	var reply map[string]any
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, EventReply, reply["type"])
	payload := reply["payload"].(map[string]any)
	assert.Equal(t, "Hi there!", payload["reply"])

	require.NoError(t, ws.WriteJSON(map[string]string{"message": ""}))
	var invalid map[string]any
	require.NoError(t, ws.ReadJSON(&invalid))
	assert.Equal(t, EventError, invalid["type"])
	assert.Equal(t, float64(http.StatusBadRequest), invalid["status"])
}

func TestMessageErrorLevel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want slog.Level
	}{
		{"validation", &chat.ValidationError{Reason: "Message cannot be empty"}, slog.LevelDebug},
		{"wrapped validation", fmt.Errorf("handle: %w", &chat.ValidationError{Reason: "too long"}), slog.LevelDebug},
		{"store failure", errors.New("disk I/O error"), slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, messageErrorLevel(tt.err))
		})
	}
}
