// Package tui is the terminal chat surface: a bubbletea model driven by a
// chat.Controller.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"foneai-widget/internal/chat"
)

// Controller events arrive through a channel as these messages.
type (
	stateMsg    chat.State
	messageMsg  chat.Message
	loadingMsg  string
	rejectedMsg struct{ err error }
)

type Options struct {
	// Markdown renders ai replies with glamour.
	Markdown bool
	Title    string
}

type Model struct {
	ctx      context.Context
	ctl      *chat.Controller
	events   chan tea.Msg
	input    textinput.Model
	viewport viewport.Model
	styles   Styles
	renderer *glamour.TermRenderer
	title    string

	messages []chat.Message
	state    chat.State
	loading  string
	notice   string
	width    int
	height   int
}

func NewModel(ctx context.Context, ctl *chat.Controller, opts Options) Model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = ctl.Copy().Placeholder
	ti.Prompt = "> "
	ti.PromptStyle = styles.Prompt
	ti.CharLimit = 4096
	ti.Width = 76
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if opts.Markdown {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(76),
		)
	}

	title := opts.Title
	if title == "" {
		title = "F1 RACE ENGINEER"
	}

	return Model{
		ctx:      ctx,
		ctl:      ctl,
		events:   make(chan tea.Msg, 64),
		input:    ti,
		viewport: vp,
		styles:   styles,
		renderer: renderer,
		title:    title,
		width:    80,
		height:   24,
	}
}

// Listener forwards controller events into the model's update loop.
func (m Model) Listener() chat.Listener {
	return chat.ListenerFuncs{
		State:   func(s chat.State) { m.events <- stateMsg(s) },
		Message: func(msg chat.Message) { m.events <- messageMsg(msg) },
		Loading: func(label string) { m.events <- loadingMsg(label) },
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m Model) listen() tea.Cmd {
	events := m.events
	return func() tea.Msg { return <-events }
}

func (m Model) submit(question string) tea.Cmd {
	ctx, ctl, listener := m.ctx, m.ctl, m.Listener()
	return func() tea.Msg {
		if _, err := ctl.Submit(ctx, question, listener); err != nil {
			return rejectedMsg{err: err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.state == chat.StateAwaiting {
				return m, nil
			}
			question := strings.TrimSpace(m.input.Value())
			if question == "" || question == m.ctl.Copy().Placeholder {
				return m, nil
			}
			m.input.Reset()
			m.notice = ""
			return m, m.submit(question)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		// header, loading line and input
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case stateMsg:
		m.state = chat.State(msg)
		if m.state == chat.StateAwaiting {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, m.listen()

	case messageMsg:
		m.messages = append(m.messages, chat.Message(msg))
		m.refresh()
		return m, m.listen()

	case loadingMsg:
		m.loading = string(msg)
		return m, m.listen()

	case rejectedMsg:
		if errors.Is(msg.err, chat.ErrBusy) {
			m.notice = "still waiting for the last answer"
		}
		return m, nil
	}

	if m.state == chat.StateAwaiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-renders the transcript and scrolls to the newest message.
func (m *Model) refresh() {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m Model) renderMessage(msg chat.Message) string {
	width := max(m.width-4, 20)
	switch msg.Role {
	case chat.RoleUser:
		return m.styles.User.Render(lipgloss.NewStyle().Width(width).Render(msg.Text))
	case chat.RoleError:
		return m.styles.Error.Render(lipgloss.NewStyle().Width(width).Render(msg.Text))
	}
	if m.renderer != nil {
		if out, err := m.renderer.Render(msg.Text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return m.styles.AI.Render(lipgloss.NewStyle().Width(width).Render(msg.Text))
}

func (m Model) View() string {
	status := m.loading
	if status != "" {
		status = m.styles.Loading.Render(status)
	} else if m.notice != "" {
		status = m.notice
	}
	return strings.Join([]string{
		m.styles.Header.Render(m.title),
		m.viewport.View(),
		status,
		m.input.View(),
	}, "\n")
}

// Messages returns what the model has displayed so far.
func (m Model) Messages() []chat.Message {
	out := make([]chat.Message, len(m.messages))
	copy(out, m.messages)
	return out
}
