// Package widget hosts one chat controller per page session for the gateway.
package widget

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
)

var (
	ErrSessionNotFound = errors.New("widget session not found")
	ErrRateLimited     = errors.New("too many messages, slow down")
)

// Options configures every session a Manager opens.
type Options struct {
	// Controller options applied to each new session.
	Controller []chat.Option
	// RatePerMinute caps submissions per session; zero disables the limit.
	RatePerMinute int
	RateBurst     int
	// IdleTimeout evicts sessions with no activity; zero keeps them forever.
	IdleTimeout time.Duration
}

// Manager owns the live widget sessions.
type Manager struct {
	backend chat.Backend
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	mu           sync.RWMutex
	sessions     map[string]*Session
	evictRunning bool
}

// NewManager creates a Manager whose sessions talk to b.
func NewManager(b chat.Backend, opts Options) *Manager {
	return &Manager{
		backend:  b,
		opts:     opts,
		logger:   log.With().Str("component", "widget").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open starts a new page session.
func (m *Manager) Open() *Session {
	id := uuid.NewString()
	s := newSession(id, chat.New(m.backend, m.opts.Controller...), m.newLimiter(), m.now().UTC())

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info().Str("session_id", id).Msg("widget session opened")
	return s
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.opts.RatePerMinute <= 0 {
		return nil
	}
	burst := m.opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.opts.RatePerMinute)), burst)
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards a session and disconnects its subscribers.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	m.logger.Info().Str("session_id", id).Msg("widget session closed")
	return nil
}

// Submit forwards text to the session's controller and returns the
// resulting snapshot.
func (m *Manager) Submit(ctx context.Context, id, text string) (model.Snapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return model.Snapshot{}, err
	}
	// blank input never reaches the limiter
	if strings.TrimSpace(text) == "" {
		return model.Snapshot{}, chat.ErrEmptyInput
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return model.Snapshot{}, ErrRateLimited
	}
	s.touch(m.now())

	if err := s.controller.Submit(ctx, text); err != nil {
		return model.Snapshot{}, err
	}
	s.touch(m.now())
	return s.controller.Snapshot(), nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll drops every session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// StartEvictionLoop periodically closes idle sessions until ctx is done.
func (m *Manager) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	if m.opts.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	m.mu.Lock()
	if m.evictRunning {
		m.mu.Unlock()
		return
	}
	m.evictRunning = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				m.evictRunning = false
				m.mu.Unlock()
				return
			case now := <-ticker.C:
				if n := m.evictIdleOnce(now); n > 0 {
					m.logger.Info().Int("evicted", n).Msg("idle widget sessions evicted")
				}
			}
		}
	}()
}

func (m *Manager) evictIdleOnce(now time.Time) int {
	idle := m.opts.IdleTimeout
	if idle <= 0 {
		return 0
	}

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	evicted := 0
	for _, s := range candidates {
		if !s.idleSince(now, idle) {
			continue
		}
		m.mu.Lock()
		current, ok := m.sessions[s.ID]
		if !ok || current != s {
			m.mu.Unlock()
			continue
		}
		delete(m.sessions, s.ID)
		m.mu.Unlock()

		s.close()
		evicted++
	}
	return evicted
}
