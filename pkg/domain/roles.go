package domain

// Sender identifies who authored a persisted message.
type Sender string

const (
	// SenderUser indicates a message typed by the customer.
	SenderUser Sender = "user"
	// SenderAssistant indicates a reply generated by the model.
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}
