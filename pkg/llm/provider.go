// Package llm turns a customer message into a model reply. It owns the prompt
// window, the call to the completion backend, failure classification and the
// retry loop around it.
package llm

import (
	"context"
	"fmt"
)

// Role tags an entry in a prompt sequence.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage is one role-tagged entry sent to the model.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptSequence is the ordered context for a single completion.
// The first entry is always the system instruction and the last is always
// the new user message.
type PromptSequence []PromptMessage

// CompletionRequest is what a Completer sends upstream.
type CompletionRequest struct {
	Model           string
	Messages        PromptSequence
	MaxOutputTokens int
	Temperature     float64
}

// CompletionResponse is the raw upstream answer, before validation.
type CompletionResponse struct {
	// Content is the text of the first choice. It may be empty.
	Content string
	// TotalTokens is nil when the upstream did not report usage.
	TotalTokens *int
	// Model is the model that actually served the request.
	Model string
}

// Completer is a hosted model backend (OpenRouter, Gemini).
// Implementations perform exactly one request per call and must not retry.
type Completer interface {
	// Name returns the backend identifier (e.g. "openrouter").
	Name() string

	// Complete issues one blocking, non-streaming completion. Failures that
	// carry an HTTP status are returned as *APIError; transport failures are
	// returned as-is so their network cause stays inspectable.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// APIError is an upstream failure that reached the HTTP layer.
type APIError struct {
	// StatusCode is the HTTP status returned by the upstream, 0 if unknown.
	StatusCode int
	// Code is the provider-specific error code, if any.
	Code string
	// Message is the raw upstream message. It is logged, never shown to users.
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}
