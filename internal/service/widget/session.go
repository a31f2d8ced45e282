package widget

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
)

const subscriberBuffer = 64

// Session is one page's widget: a controller plus its event subscribers.
type Session struct {
	ID        string
	CreatedAt time.Time

	controller *chat.Controller
	limiter    *rate.Limiter
	detach     func()

	mu           sync.Mutex
	lastActivity time.Time
	subscribers  map[chan chat.Event]struct{}
}

func newSession(id string, controller *chat.Controller, limiter *rate.Limiter, now time.Time) *Session {
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		controller:   controller,
		limiter:      limiter,
		lastActivity: now,
		subscribers:  make(map[chan chat.Event]struct{}),
	}
	s.detach = controller.Subscribe(s.broadcast)
	return s
}

// Snapshot returns what the widget currently displays.
func (s *Session) Snapshot() model.Snapshot {
	return s.controller.Snapshot()
}

// Controller exposes the underlying controller.
func (s *Session) Controller() *chat.Controller {
	return s.controller
}

// Subscribe returns a channel of controller events and a cancel function.
// Slow subscribers lose events instead of blocking the exchange.
func (s *Session) Subscribe() (<-chan chat.Event, func()) {
	ch := make(chan chat.Event, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Session) broadcast(ev chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("component", "widget").Str("session_id", s.ID).Str("event", string(ev.Kind)).Msg("subscriber full, dropping event")
		}
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time, idle time.Duration) bool {
	if s.controller.Snapshot().Typing {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 {
		return false
	}
	return now.Sub(s.lastActivity) >= idle
}

func (s *Session) close() {
	s.detach()
	s.controller.Close()

	s.mu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()
}
