package chat

import "time"

// Role tags who authored a message in the conversation log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RoleFromSource maps a transcript source reported by the voice agent to a role.
// Anything that is not the user is treated as the advisor.
func RoleFromSource(source string) Role {
	if source == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// Message is one entry of the append-only conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Label is the display name used when rendering the message.
func (m Message) Label() string {
	if m.Role == RoleUser {
		return "You"
	}
	return "Advisor"
}
