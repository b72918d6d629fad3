package chat

import (
	"strings"

	"github.com/google/uuid"
)

const sessionPrefix = "session-"

// NewSessionID generates the identifier that correlates this console with the
// backend's conversation state.
func NewSessionID() string {
	return sessionPrefix + uuid.NewString()
}

// ResolveSessionID keeps a caller supplied identifier or generates a new one.
func ResolveSessionID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return NewSessionID()
}
