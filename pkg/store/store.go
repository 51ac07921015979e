package store

import (
	"context"
	"errors"
	"time"

	"github.com/nstogner/supportchat/pkg/domain"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

// ConversationStore manages conversation records.
type ConversationStore interface {
	// CreateConversation persists a new conversation. If ID is empty one is
	// generated. CreatedAt and UpdatedAt are set by the store.
	CreateConversation(ctx context.Context, c *domain.Conversation) error

	// GetConversation returns the conversation or an error wrapping ErrNotFound.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// DeleteConversationsBefore removes conversations whose last update is
	// older than cutoff, along with their messages. It returns the number of
	// conversations removed.
	DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageStore manages the messages of a conversation.
type MessageStore interface {
	// CreateMessage appends a message and bumps the owning conversation's
	// UpdatedAt. If ID is empty one is generated.
	CreateMessage(ctx context.Context, m *domain.Message) error

	// ListMessages returns up to limit messages of a conversation in
	// chronological order, oldest first. A non-positive limit returns all.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	// RecentHistory returns the last limit messages of a conversation in
	// chronological order.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// Store is the full persistence surface used by the chat service.
type Store interface {
	ConversationStore
	MessageStore
}
