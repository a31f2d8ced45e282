// Package session caches the backend conversation id for one page session.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Creator provisions a new backend conversation.
type Creator interface {
	CreateConversation(ctx context.Context) (string, error)
}

// SessionCreationError wraps any failure to obtain a conversation id.
type SessionCreationError struct {
	Err error
}

func (e *SessionCreationError) Error() string {
	return e.Err.Error()
}

func (e *SessionCreationError) Unwrap() error {
	return e.Err
}

// IsCreationError reports whether err came from conversation creation.
func IsCreationError(err error) bool {
	var target *SessionCreationError
	return errors.As(err, &target)
}

// Store holds at most one conversation id. Once set, the id never changes.
type Store struct {
	creator Creator

	mu sync.RWMutex
	id string

	group singleflight.Group
}

// NewStore returns an empty Store backed by creator.
func NewStore(creator Creator) *Store {
	return &Store{creator: creator}
}

// Cached returns the id without touching the network.
func (s *Store) Cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// GetOrCreate returns the cached id or creates one. Concurrent callers share
// a single creation; a failed creation is not cached.
func (s *Store) GetOrCreate(ctx context.Context) (string, error) {
	if id, ok := s.Cached(); ok {
		return id, nil
	}

	v, err, _ := s.group.Do("conversation", func() (interface{}, error) {
		if id, ok := s.Cached(); ok {
			return id, nil
		}

		id, err := s.creator.CreateConversation(ctx)
		if err != nil {
			return "", &SessionCreationError{Err: err}
		}
		if id == "" {
			return "", &SessionCreationError{Err: errors.New("no chat id returned from server")}
		}

		s.mu.Lock()
		s.id = id
		s.mu.Unlock()

		log.Debug().Str("component", "session").Str("conversation_id", id).Msg("conversation created")
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
