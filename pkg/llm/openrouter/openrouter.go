// Package openrouter implements llm.Completer against the OpenRouter
// OpenAI-compatible chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nstogner/supportchat/pkg/llm"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	DefaultSiteURL  = "http://localhost:5173"
	DefaultSiteName = "AI Live Chat"
)

// Config holds the connection settings for OpenRouter.
type Config struct {
	APIKey  string
	BaseURL string
	// SiteURL and SiteName are sent as attribution headers.
	SiteURL  string
	SiteName string
}

// Client talks to the chat completions endpoint. It does not retry; the
// invoker owns retries and per-attempt timeouts.
type Client struct {
	http *http.Client
	cfg  Config
}

var _ llm.Completer = (*Client)(nil)

// New creates a Client. A nil httpClient means http.DefaultClient.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SiteURL == "" {
		cfg.SiteURL = DefaultSiteURL
	}
	if cfg.SiteName == "" {
		cfg.SiteName = DefaultSiteName
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, cfg: cfg}
}

func (c *Client) Name() string { return "OpenRouter" }

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []llm.PromptMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorBody struct {
	Error struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// Complete sends one non-streaming completion request.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	httpReq.Header.Set("X-Title", c.cfg.SiteName)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseError(resp.StatusCode, raw)
		slog.Debug("OpenRouter returned error status", "status", resp.StatusCode, "body", string(raw))
		return nil, apiErr
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &llm.CompletionResponse{Model: out.Model}
	if len(out.Choices) > 0 {
		result.Content = out.Choices[0].Message.Content
	}
	if out.Usage != nil {
		total := out.Usage.TotalTokens
		result.TotalTokens = &total
	}
	return result, nil
}

func parseError(status int, raw []byte) *llm.APIError {
	apiErr := &llm.APIError{StatusCode: status, Message: http.StatusText(status)}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		if s := strings.TrimSpace(string(raw)); s != "" {
			apiErr.Message = s
		}
		return apiErr
	}
	if eb.Error.Message != "" {
		apiErr.Message = eb.Error.Message
	}
	if len(eb.Error.Code) > 0 {
		var code string
		if json.Unmarshal(eb.Error.Code, &code) != nil {
			code = string(eb.Error.Code)
		}
		apiErr.Code = code
	}
	return apiErr
}
