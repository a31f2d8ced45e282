package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-tavern/widget/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyContent         = errors.New("content is required")
	ErrInvalidRole          = errors.New("invalid message role")
)

// Service keeps backend conversations and their transcripts in memory.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
}

// NewService bootstraps an empty in-memory store.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

// CreateConversation provisions a new conversation id.
func (s *Service) CreateConversation(_ context.Context) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return conv, nil
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// Append stores a message and returns it with ID and timestamp filled in.
func (s *Service) Append(_ context.Context, msg chat.Message) (chat.Message, error) {
	if !msg.Role.Valid() {
		return chat.Message{}, ErrInvalidRole
	}
	if strings.TrimSpace(msg.Content) == "" {
		return chat.Message{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return chat.Message{}, ErrConversationNotFound
	}

	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg, nil
}

// Transcript returns a copy of the stored messages, oldest first.
func (s *Service) Transcript(_ context.Context, id string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[id]
	if !ok {
		return nil, ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
