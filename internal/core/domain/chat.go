package domain

import "fmt"

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one entry of a caller-owned conversation transcript.
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// ValidateHistory accepts only user and assistant turns; system
// instructions are added by the chat use case, never by callers.
func ValidateHistory(history []ChatTurn) error {
	for i, turn := range history {
		switch turn.Role {
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("history[%d]: unsupported role %q", i, turn.Role)
		}
	}
	return nil
}
