// Package node implements the four agent nodes of the delivery graph.
//
// Every node follows the same steps: mark itself as the current agent,
// build its role context, call the oracle, parse the action marker out of
// the reply and append the visible text to the conversation. The project
// manager additionally updates the plan and the task ledger, and the
// designer records its output as the latest design.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/metalagman/agency/internal/llm"
	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Node transforms the shared state by running one agent turn. On error the
// input state is returned unchanged.
type Node func(ctx context.Context, in state.State) (state.State, error)

// Recorder observes node executions.
type Recorder interface {
	ObserveNode(role string, d directive.Directive, elapsed time.Duration, err error)
}

// Config holds what every node needs.
type Config struct {
	// Oracle answers for every role without an entry in Oracles.
	Oracle  llm.Oracle
	Oracles map[roles.ID]llm.Oracle
	// SystemPrompts replaces the embedded prompt of a role.
	SystemPrompts map[roles.ID]string
	// Pacing is the delay before each oracle call. Zero disables it.
	Pacing   time.Duration
	Recorder Recorder
	Logger   *zerolog.Logger
}

type agentNode struct {
	role     *roles.Role
	prompt   string
	oracle   llm.Oracle
	pacing   time.Duration
	recorder Recorder
	logger   zerolog.Logger
}

// New builds the node that plays role id.
func New(id roles.ID, cfg Config) (Node, error) {
	role := roles.Get(id)
	if role == nil {
		return nil, fmt.Errorf("unknown role %q", id)
	}
	oracle := cfg.Oracle
	if o, ok := cfg.Oracles[id]; ok && o != nil {
		oracle = o
	}
	if oracle == nil {
		return nil, fmt.Errorf("%s: oracle is required", id)
	}
	if cfg.Pacing < 0 {
		return nil, fmt.Errorf("%s: pacing must be >= 0", id)
	}

	prompt := cfg.SystemPrompts[id]
	if prompt == "" {
		rendered, err := role.SystemPrompt()
		if err != nil {
			return nil, err
		}
		prompt = rendered
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	n := &agentNode{
		role:     role,
		prompt:   prompt,
		oracle:   oracle,
		pacing:   cfg.Pacing,
		recorder: cfg.Recorder,
		logger:   logger.With().Str("role", role.Name()).Logger(),
	}
	return n.run, nil
}

// All builds one node per role.
func All(cfg Config) (map[roles.ID]Node, error) {
	nodes := make(map[roles.ID]Node, 4)
	for _, r := range roles.All() {
		n, err := New(r.ID(), cfg)
		if err != nil {
			return nil, err
		}
		nodes[r.ID()] = n
	}
	return nodes, nil
}

func (n *agentNode) run(ctx context.Context, in state.State) (state.State, error) {
	incoming := in.NextAction
	n.logger.Debug().Str("incoming", string(incoming)).Msgf("state on entry: %s", in.Summary())

	st := in.WithCurrentAgent(n.role.Name())
	roleContext, err := n.role.Context(st, incoming)
	if err != nil {
		return in, err
	}
	if n.role.ID() == roles.ProjectManager {
		st = applyIncoming(st, incoming)
	}

	if err := n.wait(ctx); err != nil {
		return in, err
	}

	started := time.Now()
	reply, err := n.oracle.Complete(ctx, llm.Request{
		Role:         n.role.Name(),
		SystemPrompt: n.prompt,
		Context:      roleContext,
		History:      st.Messages,
	})
	if err != nil {
		n.observe("", started, err)
		n.logger.Error().Err(err).Msg("oracle call failed")
		return in, &OracleError{Role: n.role.Name(), Err: err}
	}

	res := directive.Parse(reply)
	switch {
	case res.Directive == directive.NoActionSpecified:
		n.logger.Warn().Msg("reply carried no action marker")
	case !directive.Known(res.Directive):
		n.logger.Warn().Str("directive", string(res.Directive)).Msg("reply carried an unknown action")
	}

	st = st.WithAgentMessage(n.role.Name(), res.Content).WithNextAction(res.Directive)

	switch n.role.ID() {
	case roles.ProjectManager:
		st = applyAssignment(st, res)
	case roles.Designer:
		st = st.WithLatestDesign(res.Content)
	}

	n.observe(res.Directive, started, nil)
	n.logger.Info().Str("directive", string(res.Directive)).Msg("agent replied")
	n.logger.Debug().Msgf("state on exit: %s", st.Summary())
	return st, nil
}

func (n *agentNode) wait(ctx context.Context) error {
	if n.pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(n.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (n *agentNode) observe(d directive.Directive, started time.Time, err error) {
	if n.recorder == nil {
		return
	}
	n.recorder.ObserveNode(n.role.Name(), d, time.Since(started), err)
}
