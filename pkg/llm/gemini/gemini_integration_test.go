package gemini_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nstogner/supportchat/pkg/llm"
	"github.com/nstogner/supportchat/pkg/llm/gemini"
)

func setupProvider(t *testing.T) *gemini.Provider {
	t.Helper()
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	provider, err := gemini.New(ctx, apiKey)
	if err != nil {
		t.Fatalf("gemini.New: %v", err)
	}
	return provider
}

// TestIntegrationGeminiComplete verifies a plain text reply.
func TestIntegrationGeminiComplete(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := p.Complete(ctx, llm.CompletionRequest{
		Model:           gemini.DefaultModel,
		Messages:        llm.BuildPrompt(nil, "Reply with exactly: HELLO", 10),
		MaxOutputTokens: 50,
		Temperature:     0,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(strings.ToUpper(resp.Content), "HELLO") {
		t.Errorf("Expected HELLO in response, got: %q", resp.Content)
	}
	if resp.TotalTokens == nil {
		t.Error("Expected usage metadata")
	}
	t.Logf("Response: %s (model %s)", resp.Content, resp.Model)
}

// TestIntegrationGeminiInvokerHealth runs the invoker health check end to end.
func TestIntegrationGeminiInvokerHealth(t *testing.T) {
	p := setupProvider(t)

	opts := llm.DefaultOptions()
	opts.Model = gemini.DefaultModel
	inv := llm.NewInvoker(p, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !inv.Health(ctx) {
		t.Error("Health() = false, want true")
	}
}
