package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/metalagman/agency/internal/db"
	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/router"
	"github.com/metalagman/agency/internal/sdlc/state"
)

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeDone          Outcome = db.StatusDone
	OutcomeAwaitingInput Outcome = db.StatusAwaitingInput
	OutcomeStepCeiling   Outcome = db.StatusStepCeiling
	OutcomeOracleFailure Outcome = db.StatusOracleFailure
	OutcomeCanceled      Outcome = db.StatusCanceled
)

// TurnResult is a finished turn.
type TurnResult struct {
	SessionID string       `json:"session_id"`
	Outcome   Outcome      `json:"outcome"`
	Steps     []graph.Step `json:"steps"`
	// State is the last applied state.
	State state.State `json:"state"`
}

// Classify maps the end of a run to an outcome. last is the target of the
// final applied step. Errors other than the ceiling and cancellation are
// oracle failures.
func Classify(last router.Target, err error) Outcome {
	switch {
	case err == nil && last == router.TerminalDone:
		return OutcomeDone
	case err == nil:
		return OutcomeAwaitingInput
	case errors.Is(err, graph.ErrStepCeiling):
		return OutcomeStepCeiling
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeOracleFailure
	}
}

// Advance runs one turn over an in-memory state without persistence. It
// returns the last applied state and the outcome.
func Advance(ctx context.Context, engine Engine, st state.State, utterance string) (TurnResult, error) {
	if strings.TrimSpace(utterance) == "" {
		return TurnResult{State: st}, ErrEmptyMessage
	}
	res := TurnResult{State: st.WithUserMessage(utterance)}
	var last router.Target
	var runErr error
	for step, err := range engine.Run(ctx, res.State) {
		if err != nil {
			runErr = err
			break
		}
		res.Steps = append(res.Steps, step)
		res.State = step.State
		last = step.Next
	}
	res.Outcome = Classify(last, runErr)
	return res, runErr
}

// Turn appends utterance to the session and runs the engine. Each applied
// step is persisted before it is yielded, so a failing step leaves the
// session at the previous one. The final error, if any, ends the sequence.
func (s *Service) Turn(ctx context.Context, id, utterance string) iter.Seq2[graph.Step, error] {
	return func(yield func(graph.Step, error) bool) {
		_, _ = s.turn(ctx, id, utterance, yield)
	}
}

// Send runs a turn to completion.
func (s *Service) Send(ctx context.Context, id, utterance string) (TurnResult, error) {
	return s.turn(ctx, id, utterance, nil)
}

func (s *Service) turn(ctx context.Context, id, utterance string, yield func(graph.Step, error) bool) (TurnResult, error) {
	emit := func(step graph.Step, err error) bool {
		if yield == nil {
			return true
		}
		return yield(step, err)
	}
	fail := func(err error) (TurnResult, error) {
		emit(graph.Step{}, err)
		return TurnResult{SessionID: id}, err
	}

	if strings.TrimSpace(utterance) == "" {
		return fail(ErrEmptyMessage)
	}
	lock, err := tryLock(s.lockDir, id)
	if err != nil {
		return fail(err)
	}
	defer s.release(lock, id)

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return fail(err)
	}
	st, err := decodeState(sess.StateJSON)
	if err != nil {
		return fail(fmt.Errorf("session %s: %w", id, err))
	}

	turnNo := sess.Turns + 1
	st = st.WithUserMessage(utterance)
	raw, err := encodeState(st)
	if err != nil {
		return fail(err)
	}
	if err := s.store.UpdateSession(ctx, id, db.Update{Status: db.StatusRunning, StateJSON: raw, Turns: turnNo},
		&db.Event{Type: "turn_started", Message: utterance}); err != nil {
		return fail(err)
	}

	l := s.logger.With().Str("session_id", id).Int("turn", turnNo).Logger()
	l.Info().Msg("turn started")

	res := TurnResult{SessionID: id, State: st}
	var last router.Target
	var runErr error
	stopped := false
	started := time.Now().UTC()

	for step, err := range s.engine.Run(ctx, st) {
		if err != nil {
			runErr = err
			break
		}
		ended := time.Now().UTC()
		if err := s.commitStep(ctx, id, turnNo, step, started, ended); err != nil {
			runErr = err
			break
		}
		res.Steps = append(res.Steps, step)
		res.State = step.State
		last = step.Next
		started = ended

		if !emit(step, nil) {
			stopped = true
			break
		}
	}

	res.Outcome = Classify(last, runErr)
	if stopped {
		res.Outcome = OutcomeCanceled
	}

	// Persist the outcome even when ctx is already canceled.
	finalCtx := context.WithoutCancel(ctx)
	finalRaw, err := encodeState(res.State)
	if err == nil {
		data, _ := json.Marshal(map[string]any{"outcome": res.Outcome, "steps": len(res.Steps)})
		ev := &db.Event{Type: "turn_finished", Message: string(res.Outcome), DataJSON: string(data)}
		if runErr != nil {
			ev.Message = fmt.Sprintf("%s: %v", res.Outcome, runErr)
		}
		err = s.store.UpdateSession(finalCtx, id, db.Update{Status: string(res.Outcome), StateJSON: finalRaw, Turns: turnNo}, ev)
	}
	if err != nil {
		l.Error().Err(err).Msg("persist turn outcome")
	}

	if s.observer != nil {
		s.observer.ObserveTurn(string(res.Outcome), len(res.Steps))
	}

	ev := l.Info()
	if runErr != nil {
		ev = l.Warn().Err(runErr)
	}
	ev.Str("outcome", string(res.Outcome)).Int("steps", len(res.Steps)).Msg("turn finished")

	if runErr != nil {
		emit(graph.Step{}, runErr)
		return res, runErr
	}
	return res, nil
}

func (s *Service) commitStep(ctx context.Context, id string, turn int, step graph.Step, started, ended time.Time) error {
	raw, err := encodeState(step.State)
	if err != nil {
		return err
	}
	data, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}
	return s.store.CommitStep(ctx, db.StepRecord{
		SessionID: id,
		Turn:      turn,
		StepIndex: step.Index,
		Node:      string(step.Node),
		Directive: string(step.Directive),
		Next:      string(step.Next),
		Content:   step.Content,
		StartedAt: started,
		EndedAt:   ended,
	}, raw, []db.Event{{Type: "step_committed", Message: fmt.Sprintf("%s: %s", step.Node, step.Directive), DataJSON: string(data)}})
}
