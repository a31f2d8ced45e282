package chat

import (
	"time"

	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
)

// EventKind names a change observed on the controller.
type EventKind string

const (
	EventWelcomeCleared    EventKind = "welcome_cleared"
	EventMessageAppended   EventKind = "message_appended"
	EventInputCleared      EventKind = "input_cleared"
	EventTypingStarted     EventKind = "typing_started"
	EventTypingStopped     EventKind = "typing_stopped"
	EventStateChanged      EventKind = "state_changed"
	EventExchangeCompleted EventKind = "exchange_completed"
)

// Event is delivered to listeners in the order the changes happened.
// Message is set for EventMessageAppended, Snapshot for EventExchangeCompleted.
type Event struct {
	Kind     EventKind       `json:"kind"`
	State    model.State     `json:"state,omitempty"`
	Message  *model.Message  `json:"message,omitempty"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
	At       time.Time       `json:"at"`
}

// Listener receives controller events. It runs on the submitting goroutine
// and must not call Submit.
type Listener func(Event)
