// Package chat drives one widget session: it accepts submissions, acquires
// the backend conversation lazily, sequences requests and keeps the
// transcript the widget renders.
package chat

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/widget/internal/client/backend"
	"github.com/zhouzirui/z-tavern/widget/internal/format"
	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/session"
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a message is already being sent")
	ErrClosed     = errors.New("chat session closed")
)

// ErrorPrefix starts every failure line added to the transcript.
const ErrorPrefix = "Error: "

// Backend is the remote service the controller talks to.
type Backend interface {
	CreateConversation(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, conversationID, text string) (backend.Reply, error)
}

// SendPolicy decides what happens to a submission while another is in flight.
type SendPolicy string

const (
	SendQueue  SendPolicy = "queue"
	SendReject SendPolicy = "reject"
)

// ParseSendPolicy validates a configured policy. Empty means SendQueue.
func ParseSendPolicy(raw string) (SendPolicy, error) {
	switch p := SendPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return SendQueue, nil
	case SendQueue, SendReject:
		return p, nil
	default:
		return "", errors.Errorf("unknown send policy %q", raw)
	}
}

// Option customises a Controller.
type Option func(*Controller)

// WithWelcome sets the placeholder shown until the first submission.
func WithWelcome(text string) Option {
	return func(c *Controller) { c.welcome = text }
}

// WithSendPolicy selects queueing or rejecting of overlapping submissions.
func WithSendPolicy(p SendPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithRequestTimeout bounds each exchange. Zero means no limit.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithFormatter replaces the default formatter.
func WithFormatter(f *format.Formatter) Option {
	return func(c *Controller) {
		if f != nil {
			c.formatter = f
		}
	}
}

// Controller owns the conversation id, the welcome flag and the transcript of
// a single page session. It is safe for concurrent use; network flows run one
// at a time.
type Controller struct {
	backend   Backend
	session   *session.Store
	formatter *format.Formatter
	policy    SendPolicy
	timeout   time.Duration
	logger    zerolog.Logger

	// slot admits one exchange at a time.
	slot chan struct{}

	// emitMu keeps listener delivery in mutation order.
	emitMu sync.Mutex

	mu             sync.RWMutex
	welcome        string
	welcomeCleared bool
	messages       []model.Message
	pending        int
	state          model.State
	closed         bool
	listeners      map[int]Listener
	nextListener   int
}

// New builds a Controller in the Idle state.
func New(b Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:   b,
		session:   session.NewStore(b),
		formatter: format.New(),
		policy:    SendQueue,
		slot:      make(chan struct{}, 1),
		state:     model.StateIdle,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With().Str("component", "chat").Logger()
	return c
}

// Submit sends text to the backend and records the exchange. Failures are
// written to the transcript as "Error: ..." lines and do not return an error;
// only ErrEmptyInput, ErrBusy and ErrClosed are returned.
func (c *Controller) Submit(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return ErrEmptyInput
	}

	if c.policy == SendReject {
		select {
		case c.slot <- struct{}{}:
		default:
			return ErrBusy
		}
	}

	if err := c.begin(content); err != nil {
		if c.policy == SendReject {
			<-c.slot
		}
		return err
	}

	if c.policy != SendReject {
		select {
		case c.slot <- struct{}{}:
		case <-ctx.Done():
			// still queued: the running exchange keeps the state
			c.finish(ErrorPrefix+ctx.Err().Error(), true, false)
			return nil
		}
	}
	defer func() { <-c.slot }()

	c.exchange(ctx, content)
	return nil
}

func (c *Controller) exchange(ctx context.Context, content string) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id, ok := c.session.Cached()
	if !ok {
		c.setState(model.StateAwaitingSession)
		var err error
		id, err = c.session.GetOrCreate(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("conversation creation failed")
			c.finish(ErrorPrefix+err.Error(), true, true)
			return
		}
	}

	c.setState(model.StateAwaitingReply)
	reply, err := c.backend.PostMessage(ctx, id, content)
	if err != nil {
		c.logger.Warn().Err(err).Str("conversation_id", id).Msg("message send failed")
		c.finish(ErrorPrefix+err.Error(), true, true)
		return
	}
	c.finish(reply.Display(), reply.Kind == backend.ReplyError, true)
}

// begin records the user side of an exchange.
func (c *Controller) begin(content string) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	now := time.Now().UTC()
	var events []Event
	if !c.welcomeCleared {
		c.welcomeCleared = true
		c.welcome = ""
		events = append(events, Event{Kind: EventWelcomeCleared, At: now})
	}
	msg := c.appendLocked(model.RoleUser, content, now)
	events = append(events,
		Event{Kind: EventMessageAppended, Message: &msg, At: now},
		Event{Kind: EventInputCleared, At: now},
	)
	c.pending++
	if c.pending == 1 {
		events = append(events, Event{Kind: EventTypingStarted, At: now})
	}
	listeners := c.listenersLocked()
	c.mu.Unlock()

	deliver(listeners, events)
	return nil
}

// finish appends the assistant side of an exchange and releases the typing
// indicator once nothing else is pending. Only the running exchange owns the
// state machine.
func (c *Controller) finish(content string, failed, ownsState bool) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	now := time.Now().UTC()
	msg := c.appendLocked(model.RoleAssistant, content, now)
	events := []Event{{Kind: EventMessageAppended, Message: &msg, At: now}}
	c.pending--
	if c.pending == 0 {
		events = append(events, Event{Kind: EventTypingStopped, At: now})
	}
	if ownsState {
		if failed {
			c.state = model.StateErrorDisplayed
			events = append(events, Event{Kind: EventStateChanged, State: c.state, At: now})
		}
		c.state = model.StateIdle
		events = append(events, Event{Kind: EventStateChanged, State: c.state, At: now})
	}
	snap := c.snapshotLocked()
	events = append(events, Event{Kind: EventExchangeCompleted, State: c.state, Snapshot: &snap, At: now})
	listeners := c.listenersLocked()
	c.mu.Unlock()

	deliver(listeners, events)
}

func (c *Controller) setState(s model.State) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := c.listenersLocked()
	c.mu.Unlock()

	deliver(listeners, []Event{{Kind: EventStateChanged, State: s, At: time.Now().UTC()}})
}

func (c *Controller) appendLocked(role model.Role, content string, now time.Time) model.Message {
	id, _ := c.session.Cached()
	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Role:           role,
		Content:        content,
		Markup:         c.formatter.Render(content),
		CreatedAt:      now,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Snapshot returns a copy of the visible state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.Snapshot {
	messages := make([]model.Message, len(c.messages))
	copy(messages, c.messages)
	id, _ := c.session.Cached()
	return model.Snapshot{
		Welcome:        c.welcome,
		Messages:       messages,
		Typing:         c.pending > 0,
		State:          c.state,
		ConversationID: id,
	}
}

// State reports the current exchange state.
func (c *Controller) State() model.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ConversationID returns the backend id once one has been acquired.
func (c *Controller) ConversationID() (string, bool) {
	return c.session.Cached()
}

// Subscribe registers l and returns a function that removes it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Close rejects further submissions and drops all listeners. Exchanges
// already running complete normally.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.listeners = make(map[int]Listener)
}

func (c *Controller) listenersLocked() []Listener {
	if len(c.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = c.listeners[id]
	}
	return out
}

func deliver(listeners []Listener, events []Event) {
	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}
