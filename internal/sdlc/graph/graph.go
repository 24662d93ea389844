// Package graph drives agent nodes until the router reaches a terminal.
package graph

import (
	"context"
	"fmt"
	"iter"

	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/node"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/router"
	"github.com/metalagman/agency/internal/sdlc/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxSteps bounds a single run when no ceiling is configured.
const DefaultMaxSteps = 25

// Step is one executed node.
type Step struct {
	// Index is 1-based within the run.
	Index     int                 `json:"index"`
	Node      roles.ID            `json:"node"`
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	Directive directive.Directive `json:"directive"`
	Next      router.Target       `json:"next"`
	// Redirected is set when the directive pointed outside the node's edges
	// and control went to the project manager instead.
	Redirected bool        `json:"redirected,omitempty"`
	State      state.State `json:"-"`
}

// Outcome summarizes a finished run.
type Outcome struct {
	State    state.State
	Steps    []Step
	Terminal router.Target
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxSteps sets the step ceiling. Values <= 0 keep the default.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// Orchestrator owns the node set and runs the graph.
type Orchestrator struct {
	nodes    map[roles.ID]node.Node
	maxSteps int
	logger   zerolog.Logger
}

// New creates an orchestrator. Every role must have a node.
func New(nodes map[roles.ID]node.Node, opts ...Option) (*Orchestrator, error) {
	for _, r := range roles.All() {
		if nodes[r.ID()] == nil {
			return nil, fmt.Errorf("missing node for role %q", r.ID())
		}
	}
	o := &Orchestrator{
		nodes:    nodes,
		maxSteps: DefaultMaxSteps,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// MaxSteps returns the configured ceiling.
func (o *Orchestrator) MaxSteps() int {
	return o.maxSteps
}

// Run executes the graph from the project manager. It yields one Step per
// node and stops after the step that routes to a terminal. Node errors,
// cancellation and the step ceiling are yielded as the final error; the
// state of the last yielded step is then the last applied one.
func (o *Orchestrator) Run(ctx context.Context, initial state.State) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		current := initial
		at := roles.ProjectManager

		for index := 1; ; index++ {
			if index > o.maxSteps {
				o.logger.Warn().Int("max_steps", o.maxSteps).Msg("step ceiling reached")
				yield(Step{}, &StepCeilingError{MaxSteps: o.maxSteps})
				return
			}
			if err := ctx.Err(); err != nil {
				yield(Step{}, err)
				return
			}

			next, err := o.nodes[at](ctx, current)
			if err != nil {
				yield(Step{}, fmt.Errorf("step %d (%s): %w", index, at, err))
				return
			}
			current = next

			target, redirected := router.Next(at, current.NextAction)
			l := o.logger.With().
				Int("step", index).
				Str("node", string(at)).
				Str("directive", string(current.NextAction)).
				Str("next", string(target)).
				Logger()
			if redirected {
				l.Warn().Str("routed", string(router.Route(current.NextAction))).Msg("hop outside node edges, returning to project manager")
			} else {
				l.Debug().Msg("routed")
			}

			step := Step{
				Index:      index,
				Node:       at,
				Role:       current.CurrentAgent,
				Directive:  current.NextAction,
				Next:       target,
				Redirected: redirected,
				State:      current,
			}
			if last, ok := current.LastMessage(); ok {
				step.Content = last.Content
			}
			if !yield(step, nil) {
				return
			}
			if target.Terminal() {
				return
			}
			at = target.Role()
		}
	}
}

// Drive consumes Run. On error the outcome holds the last applied state
// and the steps executed so far.
func (o *Orchestrator) Drive(ctx context.Context, initial state.State) (Outcome, error) {
	out := Outcome{State: initial}
	for step, err := range o.Run(ctx, initial) {
		if err != nil {
			return out, err
		}
		out.State = step.State
		out.Steps = append(out.Steps, step)
		out.Terminal = step.Next
	}
	return out, nil
}
