package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/agency/internal/db"
	"github.com/metalagman/agency/internal/llm"
	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/node"
	"github.com/metalagman/agency/internal/sdlc/router"
	"github.com/metalagman/agency/internal/sdlc/state"
)

var happyPath = llm.Script{
	"project_manager": {
		"Requirements are clear. [ACTION: HANDOFF_TO_ARCHITECT]",
		"Plan approved. [ACTION: PHASE_COMPLETE]",
	},
	"architect": {"Go backend with SQLite. [ACTION: ARCHITECT_DESIGN_COMPLETE]"},
}

type turnCounter struct {
	mu       sync.Mutex
	outcomes []string
	steps    []int
}

func (c *turnCounter) ObserveTurn(outcome string, steps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
	c.steps = append(c.steps, steps)
}

func newEngine(t *testing.T, oracle llm.Oracle, maxSteps int) *graph.Orchestrator {
	t.Helper()
	nodes, err := node.All(node.Config{Oracle: oracle})
	require.NoError(t, err)
	o, err := graph.New(nodes, graph.WithMaxSteps(maxSteps))
	require.NoError(t, err)
	return o
}

func newService(t *testing.T, oracle llm.Oracle, maxSteps int, opts ...Option) (*Service, *db.Store) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "agency.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	store := db.NewStore(database)
	opts = append([]Option{WithLockDir(filepath.Join(dir, "locks"))}, opts...)
	return New(store, newEngine(t, oracle, maxSteps), opts...), store
}

func TestSendReachesDone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	counter := &turnCounter{}
	svc, _ := newService(t, llm.NewScriptOracle(happyPath), 25, WithObserver(counter))

	info, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.StatusIdle, info.Status)
	assert.Empty(t, info.State.Messages)

	res, err := svc.Send(ctx, info.ID, "Build a todo app")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "Go backend with SQLite.", res.State.ProjectPlan)
	assert.Len(t, res.State.Messages, 4)

	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusDone, got.Status)
	assert.Equal(t, 3, got.StepCount)
	assert.Equal(t, 1, got.Turns)
	assert.Equal(t, res.State, got.State)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, "architect", got.Steps[1].Node)
	assert.Equal(t, string(directive.PhaseComplete), got.Steps[2].Directive)

	assert.Equal(t, []string{"done"}, counter.outcomes)
	assert.Equal(t, []int{3}, counter.steps)
}

func TestSendAwaitsInputAndResumes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	oracle := llm.NewScriptOracle(llm.Script{
		"project_manager": {
			"What platform? [ACTION: CLARIFY_CLIENT_INPUT]",
			"Thanks, that settles it. [ACTION: PHASE_COMPLETE]",
		},
	})
	svc, _ := newService(t, oracle, 25)
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	res, err := svc.Send(ctx, info.ID, "Build an app")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingInput, res.Outcome)
	assert.Len(t, res.Steps, 1)

	res, err = svc.Send(ctx, info.ID, "iOS")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	require.Len(t, res.State.Messages, 4)
	assert.Equal(t, state.Message{Role: state.RoleUser, Content: "iOS"}, res.State.Messages[2])

	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Turns)
	assert.Equal(t, 2, got.StepCount)
	assert.Equal(t, 1, got.Steps[1].Index, "step index restarts each turn")
	assert.Equal(t, 2, got.Steps[1].Turn)
}

func TestOracleFailureKeepsLastAppliedStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	script := llm.NewScriptOracle(llm.Script{
		"project_manager": {
			"Requirements are clear. [ACTION: HANDOFF_TO_ARCHITECT]",
			"Trying the architect again. [ACTION: HANDOFF_TO_ARCHITECT]",
			"Plan approved. [ACTION: PHASE_COMPLETE]",
		},
		"architect": {"Go backend with SQLite. [ACTION: ARCHITECT_DESIGN_COMPLETE]"},
	})
	var broken atomic.Bool
	broken.Store(true)
	oracle := llm.OracleFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if req.Role == "Architect" && broken.Load() {
			return "", errors.New("upstream timeout")
		}
		return script.Complete(ctx, req)
	})
	counter := &turnCounter{}
	svc, _ := newService(t, oracle, 25, WithObserver(counter))
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	res, err := svc.Send(ctx, info.ID, "Build a todo app")
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrOracle)
	assert.Equal(t, OutcomeOracleFailure, res.Outcome)
	require.Len(t, res.Steps, 1)

	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusOracleFailure, got.Status)
	assert.Equal(t, 1, got.StepCount)
	require.Len(t, got.State.Messages, 2, "client message and project manager reply")
	assert.Equal(t, directive.HandoffToArchitect, got.State.NextAction)

	broken.Store(false)
	res, err = svc.Send(ctx, info.ID, "Please retry")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, "Go backend with SQLite.", res.State.ProjectPlan)
	assert.Equal(t, []string{"oracle_failure", "done"}, counter.outcomes)
}

func TestStepCeilingIsReported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	oracle := llm.NewScriptOracle(llm.Script{
		"project_manager": {"Designer, once more. [ACTION: ASSIGN_TO_DESIGNER]"},
		"designer":        {"Another mockup. [ACTION: DESIGN_COMPLETE]"},
	})
	svc, _ := newService(t, oracle, 5)
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	res, err := svc.Send(ctx, info.ID, "Design a logo")
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrStepCeiling)
	assert.Equal(t, OutcomeStepCeiling, res.Outcome)
	assert.Len(t, res.Steps, 5)

	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusStepCeiling, got.Status)
	assert.Equal(t, 5, got.StepCount)
}

func TestBusySessionRejectsSecondTurn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, llm.NewScriptOracle(happyPath), 25)
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	held, err := tryLock(svc.lockDir, info.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, info.ID, "Build a todo app")
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = svc.Reset(ctx, info.ID)
	assert.ErrorIs(t, err, ErrSessionBusy)

	require.NoError(t, held.release())
	_, err = svc.Send(ctx, info.ID, "Build a todo app")
	assert.NoError(t, err)
}

func TestAbandonedTurnIsReportedInterrupted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t, llm.NewScriptOracle(happyPath), 25)
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	sess, err := store.GetSession(ctx, info.ID)
	require.NoError(t, err)
	require.NoError(t, store.UpdateSession(ctx, info.ID,
		db.Update{Status: db.StatusRunning, StateJSON: sess.StateJSON, Turns: 1}, nil))

	held, err := tryLock(svc.lockDir, info.ID)
	require.NoError(t, err)
	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusRunning, got.Status, "a held lock means the turn is live")
	require.NoError(t, held.release())

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, db.StatusInterrupted, list[0].Status)

	got, err = svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusInterrupted, got.Status)
	assert.Equal(t, 1, got.Turns)

	events, err := store.ListEvents(ctx, info.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "turn_interrupted", events[len(events)-1].Type)

	res, err := svc.Send(ctx, info.ID, "Build a todo app")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
}

func TestTurnYieldsPersistedSteps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t, llm.NewScriptOracle(happyPath), 25)
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	var seen int
	for step, err := range svc.Turn(ctx, info.ID, "Build a todo app") {
		require.NoError(t, err)
		seen++
		sess, err := store.GetSession(ctx, info.ID)
		require.NoError(t, err)
		assert.Equal(t, step.Index, sess.StepCount, "step is stored before it is yielded")
	}
	assert.Equal(t, 3, seen)
}

func TestTurnConsumerBreakCancels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, llm.NewScriptOracle(happyPath), 25)
	info, err := svc.Create(ctx)
	require.NoError(t, err)

	for _, err := range svc.Turn(ctx, info.ID, "Build a todo app") {
		require.NoError(t, err)
		break
	}

	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCanceled, got.Status)
	assert.Equal(t, 1, got.StepCount)
}

func TestTurnErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, llm.NewScriptOracle(happyPath), 25)

	_, err := svc.Send(ctx, "missing", "hello")
	assert.True(t, IsNotFound(err))

	info, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Send(ctx, info.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	var last error
	for _, err := range svc.Turn(canceled, info.ID, "hello") {
		last = err
	}
	assert.ErrorIs(t, last, context.Canceled)

	got, err := svc.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusIdle, got.Status)
	assert.Empty(t, got.State.Messages)
}

func TestResetDeleteAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, llm.NewScriptOracle(happyPath), 25)

	first, err := svc.Create(ctx)
	require.NoError(t, err)
	second, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.Send(ctx, first.ID, "Build a todo app")
	require.NoError(t, err)

	reset, err := svc.Reset(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusIdle, reset.Status)
	assert.Equal(t, state.New(), reset.State)
	assert.Len(t, reset.Steps, 3, "history survives a reset")

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, second.ID))
	_, err = svc.Get(ctx, second.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(svc.Delete(ctx, second.ID)))

	res, err := svc.Prune(ctx, db.RetentionPolicy{KeepLast: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 0, res.Deleted)
}

func TestAdvance(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, llm.NewScriptOracle(happyPath), 25)

	res, err := Advance(context.Background(), engine, state.New(), "Build a todo app")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, "Build a todo app", res.State.Messages[0].Content)

	_, err = Advance(context.Background(), engine, state.New(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		last string
		err  error
		want Outcome
	}{
		{name: "done", last: "end:done", want: OutcomeDone},
		{name: "awaiting", last: "end:awaiting_input", want: OutcomeAwaitingInput},
		{name: "ceiling", err: &graph.StepCeilingError{MaxSteps: 3}, want: OutcomeStepCeiling},
		{name: "canceled", err: context.Canceled, want: OutcomeCanceled},
		{name: "deadline", err: context.DeadlineExceeded, want: OutcomeCanceled},
		{name: "oracle", err: &node.OracleError{Role: "Architect", Err: errors.New("boom")}, want: OutcomeOracleFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(router.Target(tt.last), tt.err))
		})
	}
}
