package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nstogner/supportchat/pkg/domain"
)

const (
	DefaultModel           = "openai/gpt-3.5-turbo"
	DefaultMaxOutputTokens = 500
	DefaultTemperature     = 0.7
	DefaultTimeout         = 30 * time.Second
	DefaultMaxAttempts     = 3
	DefaultHistoryWindow   = 10
)

// Options controls a single Invoker. It is built once from configuration.
type Options struct {
	Model           string
	MaxOutputTokens int
	Temperature     float64
	// Timeout bounds each upstream call separately; it is not cumulative.
	Timeout time.Duration
	// MaxAttempts is the retry ceiling: at most MaxAttempts+1 calls are made.
	MaxAttempts   int
	HistoryWindow int
}

// DefaultOptions returns the stock invocation settings.
func DefaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Temperature:     DefaultTemperature,
		Timeout:         DefaultTimeout,
		MaxAttempts:     DefaultMaxAttempts,
		HistoryWindow:   DefaultHistoryWindow,
	}
}

// Invoker generates replies through a Completer, retrying transient failures.
type Invoker struct {
	completer Completer
	opts      Options
	backoff   *Backoff
	sleep     func(ctx context.Context, d time.Duration) error
	metrics   *Metrics
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithBackoff replaces the default retry schedule.
func WithBackoff(b *Backoff) Option {
	return func(i *Invoker) { i.backoff = b }
}

// WithMetrics records attempts and outcomes.
func WithMetrics(m *Metrics) Option {
	return func(i *Invoker) { i.metrics = m }
}

// WithSleep replaces the context-aware sleep used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) { i.sleep = fn }
}

// NewInvoker creates an Invoker that owns no global state; the completer and
// options are held for its lifetime.
func NewInvoker(completer Completer, opts Options, options ...Option) *Invoker {
	i := &Invoker{
		completer: completer,
		opts:      opts,
		backoff:   DefaultBackoff(),
		sleep:     sleepWithContext,
	}
	for _, o := range options {
		o(i)
	}
	return i
}

// Request is the input to Generate.
type Request struct {
	// History holds prior turns in chronological order, excluding Message.
	History []domain.Turn
	Message string
	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(RetryEvent)
}

// GenerateReply produces a reply for newMessage given the prior history.
func (i *Invoker) GenerateReply(ctx context.Context, history []domain.Turn, newMessage string) Outcome {
	return i.Generate(ctx, Request{History: history, Message: newMessage})
}

// Generate runs the build, call, classify, retry loop and always returns a
// terminal Outcome. The prompt is built once and reused for every attempt.
func (i *Invoker) Generate(ctx context.Context, req Request) Outcome {
	prompt := BuildPrompt(req.History, req.Message, i.opts.HistoryWindow)
	state := RetryState{MaxAttempts: i.opts.MaxAttempts}

	for {
		resp, err := i.call(ctx, prompt)

		if err == nil {
			if text := strings.TrimSpace(resp.Content); text != "" {
				i.metrics.attempt("ok")
				return i.finish(Outcome{
					Text:       text,
					TokensUsed: resp.TotalTokens,
					Model:      i.replyModel(resp),
					Attempts:   state.Attempt + 1,
				})
			}
			// An empty reply ends the invocation; Retryable only tells the
			// caller whether asking again is worthwhile.
			c := emptyReply(state.Attempt, state.MaxAttempts)
			slog.Warn("Completion returned an empty reply",
				"provider", i.completer.Name(),
				"attempt", state.Attempt+1,
				"maxAttempts", state.MaxAttempts,
			)
			i.metrics.attempt(string(c.Kind))
			return i.finish(Outcome{Failure: &c, Attempts: state.Attempt + 1})
		}

		c := Classify(err, state.Attempt, state.MaxAttempts)
		slog.Warn("Completion attempt failed",
			"provider", i.completer.Name(),
			"attempt", state.Attempt+1,
			"maxAttempts", state.MaxAttempts,
			"kind", c.Kind,
			"status", c.StatusCode,
			"error", err,
		)
		i.metrics.attempt(string(c.Kind))

		if !c.Retryable || !state.CanRetry() {
			return i.finish(Outcome{Failure: &c, Attempts: state.Attempt + 1})
		}

		delay := i.backoff.Delay(state.Attempt)
		slog.Info("Retrying completion", "delay", delay, "nextAttempt", state.Attempt+2, "kind", c.Kind)
		i.metrics.retry()
		if req.OnRetry != nil {
			req.OnRetry(RetryEvent{
				Attempt:        state.Attempt + 1,
				MaxAttempts:    state.MaxAttempts,
				Delay:          delay,
				Classification: c,
			})
		}

		if err := i.sleep(ctx, delay); err != nil {
			// The caller went away; nothing further can be delivered.
			final := Classify(err, state.MaxAttempts, state.MaxAttempts)
			return i.finish(Outcome{Failure: &final, Attempts: state.Attempt + 1})
		}
		state.Attempt++
	}
}

// call performs one upstream request inside its own timeout window.
func (i *Invoker) call(ctx context.Context, prompt PromptSequence) (*CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := i.completer.Complete(callCtx, CompletionRequest{
		Model:           i.opts.Model,
		Messages:        prompt,
		MaxOutputTokens: i.opts.MaxOutputTokens,
		Temperature:     i.opts.Temperature,
	})
	i.metrics.observeCall(time.Since(start))
	if err == nil && resp == nil {
		resp = &CompletionResponse{}
	}
	return resp, err
}

func (i *Invoker) replyModel(resp *CompletionResponse) string {
	if resp.Model != "" {
		return resp.Model
	}
	return i.opts.Model
}

func (i *Invoker) finish(o Outcome) Outcome {
	i.metrics.outcome(o)
	if o.Success() {
		slog.Debug("Completion succeeded", "model", o.Model, "attempts", o.Attempts)
	}
	return o
}

// Health issues a single, non-retried "Hello" completion.
func (i *Invoker) Health(ctx context.Context) bool {
	once := *i
	once.opts.MaxAttempts = 0
	once.metrics = nil
	return once.GenerateReply(ctx, nil, "Hello").Success()
}

// Stats describes the invoker configuration for monitoring.
type Stats struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	MaxRetries  int     `json:"maxRetries"`
	TimeoutMs   int64   `json:"timeout"`
}

// Stats returns the active settings.
func (i *Invoker) Stats() Stats {
	return Stats{
		Provider:    i.completer.Name(),
		Model:       i.opts.Model,
		MaxTokens:   i.opts.MaxOutputTokens,
		Temperature: i.opts.Temperature,
		MaxRetries:  i.opts.MaxAttempts,
		TimeoutMs:   i.opts.Timeout.Milliseconds(),
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
