package domain

import "time"

// Conversation groups the messages of a single support session.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single persisted entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn returns the message as a conversation turn.
func (m Message) Turn() Turn {
	return Turn{Sender: m.Sender, Text: m.Text}
}

// Turn is the minimal view of a message used to build model context.
// Turns are never mutated once read from storage.
type Turn struct {
	Sender Sender
	Text   string
}

// Turns converts messages to turns, preserving order.
func Turns(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, m.Turn())
	}
	return turns
}

// User is an account allowed to use the chat UI.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}
