// Package tui is the interactive chat front end for a stored session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/node"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/state"
	"github.com/metalagman/agency/internal/session"
)

// Options tunes the chat model.
type Options struct {
	// Style is the glamour style for agent replies.
	Style string
}

// Model is the chat screen: a transcript viewport above a single line input.
type Model struct {
	ctx       context.Context
	turns     Turns
	sessionID string
	style     string

	renderer *Renderer
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	messages []state.Message
	events   <-chan tea.Msg
	cancel   context.CancelFunc
	busy     bool
	thinking string
	status   string
	err      error
	width    int
	height   int
}

// New creates a chat model for session id. history seeds the transcript.
func New(ctx context.Context, turns Turns, id string, history []state.Message, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe your project..."
	ti.CharLimit = 4000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ThinkStyle

	m := Model{
		ctx:       ctx,
		turns:     turns,
		sessionID: id,
		style:     opts.Style,
		renderer:  NewRenderer(opts.Style, 78),
		input:     ti,
		spinner:   s,
		viewport:  viewport.New(80, 20),
		messages:  append([]state.Message(nil), history...),
		status:    "ready",
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case StepMsg:
		return m.handleStep(msg)
	case TurnDoneMsg:
		return m.handleTurnDone(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.busy {
		b.WriteString(m.spinner.View() + " " + ThinkStyle.Render(m.thinking+" is thinking..."))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")
	status := fmt.Sprintf("session %s | %s", m.sessionID, m.status)
	if m.err != nil {
		status += " | " + ErrorStyle.Render(m.err.Error())
	}
	b.WriteString(StatusBarStyle.Render(status))
	return b.String()
}

// Messages returns the transcript shown so far.
func (m Model) Messages() []state.Message {
	return m.messages
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.viewport.Width = msg.Width
	m.viewport.Height = max(msg.Height-3, 3)
	m.input.Width = max(msg.Width-4, 10)
	m.renderer = NewRenderer(m.style, max(msg.Width-2, 20))
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case tea.KeyEsc:
		if m.busy && m.cancel != nil {
			m.cancel()
			return m, nil
		}
		return m, tea.Quit
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		return m.submit()
	}
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if text == "/quit" {
		return m, tea.Quit
	}
	m.input.Reset()
	m.err = nil
	m.messages = append(m.messages, state.Message{Role: state.RoleUser, Content: text})
	m.refresh()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.busy = true
	m.thinking = roles.Get(roles.ProjectManager).Name()
	m.status = "running"
	m.events = startTurn(ctx, m.turns, m.sessionID, text)
	return m, tea.Batch(m.spinner.Tick, waitForTurn(m.events))
}

func (m Model) handleStep(msg StepMsg) (tea.Model, tea.Cmd) {
	step := msg.Step
	m.messages = append(m.messages, state.Message{Role: state.RoleAgent, Author: step.Role, Content: step.Content})
	if r := roles.Get(step.Next.Role()); r != nil {
		m.thinking = r.Name()
	}
	m.refresh()
	return m, waitForTurn(m.events)
}

func (m Model) handleTurnDone(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.busy = false
	m.events = nil
	m.err = msg.Err
	if msg.Err == nil || msg.Steps > 0 || runFailure(msg.Err) {
		m.status = fmt.Sprintf("%s after %d steps", session.Classify(msg.Last, msg.Err), msg.Steps)
	} else {
		m.status = "ready"
	}
	if errors.Is(msg.Err, graph.ErrStepCeiling) {
		m.messages = append(m.messages, state.Message{
			Role:    state.RoleSystem,
			Content: "The team went around in circles and was stopped. Try rephrasing your request.",
		})
		m.refresh()
	}
	return m, nil
}

func runFailure(err error) bool {
	return errors.Is(err, graph.ErrStepCeiling) || errors.Is(err, node.ErrOracle) ||
		errors.Is(err, context.Canceled)
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	parts := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		parts = append(parts, m.renderer.Message(msg))
	}
	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, parts...))
	m.viewport.GotoBottom()
}

// Run starts the chat program and blocks until the user quits.
func Run(ctx context.Context, turns Turns, id string, history []state.Message, opts Options) error {
	p := tea.NewProgram(New(ctx, turns, id, history, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
