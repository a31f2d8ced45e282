package chat

import "time"

// TypingIndicatorID is the fixed key of the single typing placeholder.
const TypingIndicatorID = "typing-indicator"

// Conversation is a backend-issued thread identifier.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// State is the controller's position in a send/receive exchange.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingSession State = "awaiting_session"
	StateAwaitingReply   State = "awaiting_reply"
	StateErrorDisplayed  State = "error_displayed"
)

// Snapshot is a point-in-time copy of what the widget displays.
type Snapshot struct {
	Welcome        string    `json:"welcome,omitempty"`
	Messages       []Message `json:"messages"`
	Typing         bool      `json:"typing"`
	State          State     `json:"state"`
	ConversationID string    `json:"conversationId,omitempty"`
}
