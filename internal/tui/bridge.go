package tui

import (
	"context"
	"iter"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/router"
)

// Turns runs client turns against a stored session.
type Turns interface {
	Turn(ctx context.Context, id, utterance string) iter.Seq2[graph.Step, error]
}

// StepMsg carries one executed node into the message loop.
type StepMsg struct {
	Step graph.Step
}

// TurnDoneMsg signals the end of a turn. Last is the target of the final
// applied step, empty when no step ran.
type TurnDoneMsg struct {
	Last  router.Target
	Steps int
	Err   error
}

// startTurn consumes the turn on its own goroutine and forwards every step
// on the returned channel, followed by a TurnDoneMsg.
func startTurn(ctx context.Context, turns Turns, id, utterance string) <-chan tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() {
		defer close(ch)
		done := TurnDoneMsg{}
		for step, err := range turns.Turn(ctx, id, utterance) {
			if err != nil {
				done.Err = err
				break
			}
			done.Last = step.Next
			done.Steps++
			select {
			case ch <- StepMsg{Step: step}:
			case <-ctx.Done():
				done.Err = ctx.Err()
				ch <- done
				return
			}
		}
		ch <- done
	}()
	return ch
}

// waitForTurn reads the next message of a running turn.
func waitForTurn(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
