// Package chat runs the customer message flow: persist the message, build
// context from stored history, generate a reply and persist it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nstogner/supportchat/pkg/channel"
	"github.com/nstogner/supportchat/pkg/domain"
	"github.com/nstogner/supportchat/pkg/llm"
	"github.com/nstogner/supportchat/pkg/store"
)

// ErrInvalidMessage is returned when a message fails channel validation.
var ErrInvalidMessage = errors.New("invalid message")

// ValidationError carries a user-facing reason. It matches ErrInvalidMessage
// under errors.Is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalidMessage }

// Generator produces a terminal outcome for one message.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) llm.Outcome
}

// Service handles chat messages for all channels.
type Service struct {
	store         store.Store
	generator     Generator
	channels      *channel.Registry
	historyWindow int
}

// New creates a Service. historyWindow is the number of prior turns loaded
// as context for each reply.
func New(s store.Store, g Generator, channels *channel.Registry, historyWindow int) *Service {
	return &Service{
		store:         s,
		generator:     g,
		channels:      channels,
		historyWindow: historyWindow,
	}
}

// Input is one incoming customer message.
type Input struct {
	// ConversationID continues an existing conversation. Empty or unknown IDs
	// start a new one.
	ConversationID string
	Text           string
	Channel        channel.Type
	// OnRetry is forwarded to the generator.
	OnRetry func(llm.RetryEvent)
}

// Result is the outcome of HandleMessage. Exactly one of Reply or Failure is
// set.
type Result struct {
	ConversationID string
	UserMessage    *domain.Message
	Reply          *domain.Message
	Failure        *llm.Classification
	TokensUsed     *int
}

// NormalizeText trims surrounding whitespace and applies Unicode NFC so that
// equivalent inputs are stored and measured identically.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// HandleMessage stores the message, generates a reply and stores it. A
// generation failure is reported in Result.Failure; the returned error is
// reserved for invalid input and storage problems.
func (s *Service) HandleMessage(ctx context.Context, in Input) (*Result, error) {
	adapter, err := s.channels.Get(in.Channel)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	text := NormalizeText(in.Text)
	if !adapter.Validate(text) {
		if text == "" {
			return nil, &ValidationError{Reason: "Message cannot be empty"}
		}
		return nil, &ValidationError{Reason: fmt.Sprintf("Message cannot exceed %d characters", adapter.MaxLength)}
	}

	conv, err := s.conversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &domain.Message{ConversationID: conv.ID, Sender: domain.SenderUser, Text: text}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	history, err := s.store.RecentHistory(ctx, conv.ID, s.historyWindow+1)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if n := len(history); n > 0 && history[n-1].ID == userMsg.ID {
		history = history[:n-1]
	}

	outcome := s.generator.Generate(ctx, llm.Request{
		History: domain.Turns(history),
		Message: text,
		OnRetry: in.OnRetry,
	})

	result := &Result{ConversationID: conv.ID, UserMessage: userMsg}
	if !outcome.Success() {
		slog.Warn("Reply generation failed",
			"conversationID", conv.ID,
			"kind", outcome.Failure.Kind,
			"attempts", outcome.Attempts,
		)
		result.Failure = outcome.Failure
		return result, nil
	}

	reply := &domain.Message{
		ConversationID: conv.ID,
		Sender:         domain.SenderAssistant,
		Text:           adapter.Format(outcome.Text),
	}
	if err := s.store.CreateMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("saving reply: %w", err)
	}
	result.Reply = reply
	result.TokensUsed = outcome.TokensUsed
	return result, nil
}

// History returns all messages of a conversation in chronological order.
// It returns an error wrapping store.ErrNotFound for unknown conversations.
func (s *Service) History(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID, 0)
}

func (s *Service) conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	if id != "" {
		conv, err := s.store.GetConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading conversation: %w", err)
		}
	}

	conv := &domain.Conversation{}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	slog.Info("Started conversation", "conversationID", conv.ID)
	return conv, nil
}
