package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/supportchat/pkg/llm"
)

func TestCompleteSuccess(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "https://shop.example", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, DefaultSiteName, r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "openai/gpt-3.5-turbo-0125",
			"choices": [{"message": {"role": "assistant", "content": "Hi there!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", SiteURL: "https://shop.example"}, srv.Client())
	resp, err := c.Complete(context.Background(), llm.CompletionRequest{
		Model:           "openai/gpt-3.5-turbo",
		Messages:        llm.PromptSequence{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleUser, Content: "Hello"}},
		MaxOutputTokens: 500,
		Temperature:     0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there!", resp.Content)
	assert.Equal(t, "openai/gpt-3.5-turbo-0125", resp.Model)
	require.NotNil(t, resp.TotalTokens)
	assert.Equal(t, 13, *resp.TotalTokens)

	assert.Equal(t, "openai/gpt-3.5-turbo", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, llm.RoleUser, got.Messages[1].Role)
}

func TestCompleteNoChoicesNoUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	resp, err := New(Config{BaseURL: srv.URL}, nil).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Nil(t, resp.TotalTokens)
}

func TestCompleteErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
		wantKind llm.Kind
	}{
		{"unauthorized", 401, `{"error":{"message":"No auth credentials found","code":401}}`, "401", "No auth credentials found", llm.KindInvalidKey},
		{"rate limited", 429, `{"error":{"message":"Rate limit exceeded","code":"rate_limited"}}`, "rate_limited", "Rate limit exceeded", llm.KindRateLimit},
		{"bad gateway plain", 502, `upstream unavailable`, "", "upstream unavailable", llm.KindAPIError},
		{"empty body", 500, ``, "", "Internal Server Error", llm.KindAPIError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL}, nil).Complete(context.Background(), llm.CompletionRequest{})
			require.Error(t, err)

			var apiErr *llm.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantKind, llm.Classify(err, 0, 3).Kind)
		})
	}
}

func TestCompleteHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{BaseURL: srv.URL}, nil).Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.Classify(err, 0, 3).Kind)
}
