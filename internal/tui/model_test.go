package tui

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/router"
	"github.com/metalagman/agency/internal/sdlc/state"
)

type fakeTurns struct {
	steps []graph.Step
	err   error
	got   string
}

func (f *fakeTurns) Turn(_ context.Context, _ string, utterance string) iter.Seq2[graph.Step, error] {
	f.got = utterance
	return func(yield func(graph.Step, error) bool) {
		for _, s := range f.steps {
			if !yield(s, nil) {
				return
			}
		}
		if f.err != nil {
			yield(graph.Step{}, f.err)
		}
	}
}

func step(id roles.ID, content string, d directive.Directive, next router.Target) graph.Step {
	return graph.Step{Node: id, Role: roles.Get(id).Name(), Content: content, Directive: d, Next: next}
}

func next(t *testing.T, m Model) tea.Msg {
	t.Helper()
	select {
	case msg := <-m.events:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("turn produced no message")
		return nil
	}
}

func typeAndSend(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	return updated.(Model)
}

func TestChatTurn(t *testing.T) {
	t.Parallel()

	fake := &fakeTurns{steps: []graph.Step{
		step(roles.ProjectManager, "Architect, over to you.", directive.HandoffToArchitect, router.Architect),
		step(roles.Architect, "Use **Go**.", directive.ArchitectDesignComplete, router.ProjectManager),
		step(roles.ProjectManager, "All set.", directive.PhaseComplete, router.TerminalDone),
	}}
	m := New(context.Background(), fake, "s-1", nil, Options{Style: "notty"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = updated.(Model)

	m = typeAndSend(t, m, "  Build a CLI  ")
	assert.True(t, m.busy)
	assert.Contains(t, m.View(), "Project Manager is thinking...")
	require.Len(t, m.Messages(), 1)
	assert.Equal(t, state.Message{Role: state.RoleUser, Content: "Build a CLI"}, m.Messages()[0])

	updated, _ = m.Update(next(t, m))
	m = updated.(Model)
	assert.Contains(t, m.View(), "Architect is thinking...")

	updated, _ = m.Update(next(t, m))
	m = updated.(Model)
	updated, _ = m.Update(next(t, m))
	m = updated.(Model)

	done := next(t, m)
	require.IsType(t, TurnDoneMsg{}, done)
	updated, _ = m.Update(done)
	m = updated.(Model)

	assert.False(t, m.busy)
	assert.Equal(t, "Build a CLI", fake.got)
	assert.Equal(t, "done after 3 steps", m.status)
	require.Len(t, m.Messages(), 4)
	assert.Equal(t, "Architect", m.Messages()[2].Author)
	assert.Contains(t, m.viewport.View(), "All set.")
	assert.NotContains(t, m.View(), "thinking")
}

func TestChatStepCeiling(t *testing.T) {
	t.Parallel()

	fake := &fakeTurns{
		steps: []graph.Step{step(roles.ProjectManager, "Again.", directive.AssignToDesigner, router.Designer)},
		err:   &graph.StepCeilingError{MaxSteps: 1},
	}
	m := New(context.Background(), fake, "s-1", nil, Options{Style: "notty"})
	m = typeAndSend(t, m, "logo")

	updated, _ := m.Update(next(t, m))
	m = updated.(Model)
	updated, _ = m.Update(next(t, m))
	m = updated.(Model)

	assert.False(t, m.busy)
	assert.Equal(t, "step_ceiling after 1 steps", m.status)
	require.Error(t, m.err)
	last := m.Messages()[len(m.Messages())-1]
	assert.Equal(t, state.RoleSystem, last.Role)
}

func TestChatSetupError(t *testing.T) {
	t.Parallel()

	fake := &fakeTurns{err: fmt.Errorf("session busy: s-1")}
	m := New(context.Background(), fake, "s-1", []state.Message{{Role: state.RoleUser, Content: "earlier"}}, Options{Style: "notty"})
	m = typeAndSend(t, m, "hello")

	updated, _ := m.Update(next(t, m))
	m = updated.(Model)
	assert.Equal(t, "ready", m.status)
	assert.EqualError(t, m.err, "session busy: s-1")
	assert.Len(t, m.Messages(), 2)
}

func TestChatIgnoresBlankInput(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), &fakeTurns{}, "s-1", nil, Options{Style: "notty"})
	m.input.SetValue("   ")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	assert.Nil(t, cmd)
	assert.False(t, m.busy)
	assert.Empty(t, m.Messages())
}

func TestChatEscCancelsRunningTurn(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	turns := turnsFunc(func(ctx context.Context) iter.Seq2[graph.Step, error] {
		return func(yield func(graph.Step, error) bool) {
			close(block)
			<-ctx.Done()
			yield(graph.Step{}, ctx.Err())
		}
	})
	m := New(context.Background(), turns, "s-1", nil, Options{Style: "notty"})
	m = typeAndSend(t, m, "hi")
	<-block

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.Nil(t, cmd)

	done, ok := next(t, m).(TurnDoneMsg)
	require.True(t, ok)
	assert.True(t, errors.Is(done.Err, context.Canceled))
	updated, _ = m.Update(done)
	m = updated.(Model)
	assert.Equal(t, "canceled after 0 steps", m.status)
}

type turnsFunc func(ctx context.Context) iter.Seq2[graph.Step, error]

func (f turnsFunc) Turn(ctx context.Context, _, _ string) iter.Seq2[graph.Step, error] {
	return f(ctx)
}

func TestRendererMarksSpeakers(t *testing.T) {
	t.Parallel()

	r := NewRenderer("notty", 80)
	out := r.Message(state.Message{Role: state.RoleAgent, Author: "Designer", Content: "A *clean* layout."})
	assert.Contains(t, out, "Designer")
	assert.Contains(t, out, "layout")

	out = r.Message(state.Message{Role: state.RoleUser, Content: "Thanks"})
	assert.Contains(t, out, "Client")
	assert.Contains(t, out, "Thanks")
}
