package llm

import (
	"fmt"

	"github.com/nstogner/supportchat/pkg/domain"
)

// BuildPrompt assembles the context for one completion: the system
// instruction, the last windowSize turns of history in chronological order,
// then newMessage as the final user entry.
//
// newMessage is expected to be validated by the caller. A non-positive
// windowSize is a programming error and panics.
func BuildPrompt(history []domain.Turn, newMessage string, windowSize int) PromptSequence {
	if windowSize <= 0 {
		panic(fmt.Sprintf("llm: history window must be positive, got %d", windowSize))
	}

	if len(history) > windowSize {
		history = history[len(history)-windowSize:]
	}

	prompt := make(PromptSequence, 0, len(history)+2)
	prompt = append(prompt, PromptMessage{Role: RoleSystem, Content: SystemInstruction})
	for _, t := range history {
		prompt = append(prompt, PromptMessage{Role: roleFor(t.Sender), Content: t.Text})
	}
	prompt = append(prompt, PromptMessage{Role: RoleUser, Content: newMessage})
	return prompt
}

func roleFor(s domain.Sender) Role {
	if s == domain.SenderUser {
		return RoleUser
	}
	return RoleAssistant
}
