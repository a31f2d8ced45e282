// Package tui is an interactive terminal front end for one chat controller.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	model "github.com/zhouzirui/z-tavern/widget/internal/model/chat"
	"github.com/zhouzirui/z-tavern/widget/internal/service/chat"
)

var (
	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render("You:")
	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")).Render("Assistant:")
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	welcomeStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// Controller is the part of chat.Controller the UI drives.
type Controller interface {
	Submit(ctx context.Context, text string) error
	Snapshot() model.Snapshot
	Subscribe(l chat.Listener) func()
}

type (
	// changedMsg reports that the controller state moved.
	changedMsg struct{}
	// submittedMsg reports that one Submit call returned.
	submittedMsg struct{ err error }
)

// Model is the bubbletea model.
type Model struct {
	ctrl     Controller
	ctx      context.Context
	input    textinput.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer
	header   string

	snap    model.Snapshot
	changes chan struct{}
	cancel  func()
	err     error
}

// Option customises a Model.
type Option func(*Model)

// WithRenderer renders assistant replies as terminal markdown.
func WithRenderer(r *glamour.TermRenderer) Option {
	return func(m *Model) { m.renderer = r }
}

// WithHeader sets the line shown above the transcript.
func WithHeader(header string) Option {
	return func(m *Model) { m.header = header }
}

// New builds a Model around ctrl. Submissions use ctx.
func New(ctx context.Context, ctrl Controller, opts ...Option) *Model {
	in := textinput.New()
	in.Placeholder = "Type a message"
	in.Prompt = "> "
	in.CharLimit = 0
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := &Model{
		ctrl:    ctrl,
		ctx:     ctx,
		input:   in,
		spin:    s,
		snap:    ctrl.Snapshot(),
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cancel = ctrl.Subscribe(func(chat.Event) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	return m
}

// Close detaches the model from the controller.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.listen())
}

func (m *Model) listen() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m *Model) submit(text string) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return submittedMsg{err: ctrl.Submit(ctx, text)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.err = nil
			return m, m.submit(text)
		}

	case changedMsg:
		m.snap = m.ctrl.Snapshot()
		return m, m.listen()

	case submittedMsg:
		if msg.err != nil && msg.err != chat.ErrEmptyInput {
			m.err = msg.err
		}
		m.snap = m.ctrl.Snapshot()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	var b strings.Builder
	if m.header != "" {
		b.WriteString(headerStyle.Render(m.header))
		b.WriteString("\n\n")
	}

	if m.snap.Welcome != "" {
		b.WriteString(welcomeStyle.Render(m.snap.Welcome))
		b.WriteString("\n\n")
	}
	for _, msg := range m.snap.Messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n\n")
	}
	if m.snap.Typing {
		b.WriteString(assistantLabel + " " + m.spin.View() + "typing...\n\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter to send, esc to quit"))
	return b.String()
}

func (m *Model) renderMessage(msg model.Message) string {
	if msg.Role == model.RoleUser {
		return userLabel + " " + msg.Content
	}
	if strings.HasPrefix(msg.Content, chat.ErrorPrefix) {
		return assistantLabel + " " + errorStyle.Render(msg.Content)
	}
	return assistantLabel + " " + RenderMarkdown(m.renderer, msg.Content)
}

// RenderMarkdown renders text through r, falling back to the raw text.
func RenderMarkdown(r *glamour.TermRenderer, text string) string {
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}
