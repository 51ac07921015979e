// Package gemini implements llm.Completer using the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/nstogner/supportchat/pkg/llm"
)

const DefaultModel = "gemini-2.0-flash"

// Provider sends prompts to Gemini.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ llm.Completer = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// Complete generates a single non-streamed reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	system, contents := toContents(req.Messages)
	slog.Debug("Gemini.Complete", "model", req.Model, "messageCount", len(contents))

	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:   int32(req.MaxOutputTokens),
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, translateError(err)
	}

	out := &llm.CompletionResponse{
		Content: resp.Text(),
		Model:   resp.ModelVersion,
	}
	if resp.UsageMetadata != nil {
		total := int(resp.UsageMetadata.TotalTokenCount)
		out.TotalTokens = &total
	}
	return out, nil
}

// toContents splits a prompt into the system instruction and the
// user/model turns Gemini expects.
func toContents(prompt llm.PromptSequence) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for _, m := range prompt {
		switch m.Role {
		case llm.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return system, contents
}

// translateError exposes the HTTP status of SDK errors to the classifier.
func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.APIError{StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.APIError{StatusCode: apiErrPtr.Code, Code: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}
