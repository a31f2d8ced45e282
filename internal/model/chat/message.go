package chat

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable transcript entry. Content holds the raw text,
// Markup the formatted rendition shown in the bubble.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId,omitempty"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Markup         string    `json:"markup,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
