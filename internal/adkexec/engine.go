package adkexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/state"
)

// Session state keys.
const (
	StateKey = "agent_state"
	StepKey  = "agent_step"
)

const agentName = "agency_delivery"

// Engine runs the orchestrator as a custom ADK agent. Each graph step
// becomes one ADK event authored by the node, with the visible reply as
// content and the new state as a state delta. Run translates those events
// back into steps.
type Engine struct {
	orchestrator *graph.Orchestrator
	logger       zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine wraps o.
func NewEngine(o *graph.Orchestrator, opts ...Option) (*Engine, error) {
	if o == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	e := &Engine{orchestrator: o, logger: log.Logger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes one turn through the ADK runner.
func (e *Engine) Run(ctx context.Context, initial state.State) iter.Seq2[graph.Step, error] {
	return func(yield func(graph.Step, error) bool) {
		raw, err := json.Marshal(initial)
		if err != nil {
			yield(graph.Step{}, fmt.Errorf("encode state: %w", err))
			return
		}

		// The graph error is kept aside so callers can still match it after
		// it crossed the runner.
		var graphErr error
		ag, err := e.newAgent(&graphErr)
		if err != nil {
			yield(graph.Step{}, err)
			return
		}

		stopped := false
		var decodeErr error
		final, err := invocation{
			agent:   ag,
			state:   map[string]any{StateKey: string(raw)},
			message: "Run agency turn",
			onEvent: func(ev *session.Event) bool {
				if ev.Author != agentName {
					return true
				}
				step, err := decodeStep(ev)
				if err != nil {
					decodeErr = err
					return false
				}
				if !yield(step, nil) {
					stopped = true
					return false
				}
				return true
			},
		}.run(ctx)
		switch {
		case stopped:
			return
		case decodeErr != nil:
			yield(graph.Step{}, decodeErr)
			return
		case graphErr != nil:
			yield(graph.Step{}, graphErr)
			return
		case err != nil:
			yield(graph.Step{}, err)
			return
		}

		if value, err := final.State().Get(StateKey); err == nil {
			if s, ok := value.(string); ok {
				e.logger.Debug().Int("state_bytes", len(s)).Msg("adk session finished")
			}
		}
	}
}

func (e *Engine) newAgent(graphErr *error) (agent.Agent, error) {
	return agent.New(agent.Config{
		Name:        agentName,
		Description: "Runs the project manager, architect, designer and developer graph for one client turn.",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(yield func(*session.Event, error) bool) {
				current, err := loadState(ctx)
				if err != nil {
					*graphErr = err
					yield(nil, err)
					return
				}
				for step, err := range e.orchestrator.Run(ctx, current) {
					if err != nil {
						*graphErr = err
						yield(nil, err)
						return
					}
					ev, err := encodeStep(ctx.InvocationID(), step)
					if err != nil {
						*graphErr = err
						yield(nil, err)
						return
					}
					if err := ctx.Session().State().Set(StateKey, ev.Actions.StateDelta[StateKey]); err != nil {
						e.logger.Warn().Err(err).Msg("set adk session state")
					}
					if !yield(ev, nil) {
						return
					}
				}
			}
		},
	})
}

func loadState(ctx agent.InvocationContext) (state.State, error) {
	value, err := ctx.Session().State().Get(StateKey)
	if err != nil {
		return state.State{}, fmt.Errorf("read %s: %w", StateKey, err)
	}
	raw, ok := value.(string)
	if !ok {
		return state.State{}, fmt.Errorf("%s has type %T", StateKey, value)
	}
	st := state.New()
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return state.State{}, fmt.Errorf("decode %s: %w", StateKey, err)
	}
	return st, nil
}

func encodeStep(invocationID string, step graph.Step) (*session.Event, error) {
	stateJSON, err := json.Marshal(step.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	stepJSON, err := json.Marshal(step)
	if err != nil {
		return nil, fmt.Errorf("encode step: %w", err)
	}
	ev := session.NewEvent(invocationID)
	ev.Author = agentName
	ev.Content = genai.NewContentFromText(step.Content, genai.RoleModel)
	ev.Actions.StateDelta = map[string]any{
		StateKey: string(stateJSON),
		StepKey:  string(stepJSON),
	}
	return ev, nil
}

func decodeStep(ev *session.Event) (graph.Step, error) {
	var step graph.Step
	rawStep, ok := ev.Actions.StateDelta[StepKey].(string)
	if !ok {
		return step, errors.New("adk event carries no step")
	}
	if err := json.Unmarshal([]byte(rawStep), &step); err != nil {
		return step, fmt.Errorf("decode step: %w", err)
	}
	rawState, ok := ev.Actions.StateDelta[StateKey].(string)
	if !ok {
		return step, errors.New("adk event carries no state")
	}
	st := state.New()
	if err := json.Unmarshal([]byte(rawState), &st); err != nil {
		return step, fmt.Errorf("decode state: %w", err)
	}
	step.State = st
	return step, nil
}
