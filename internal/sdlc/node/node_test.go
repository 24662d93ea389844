package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/metalagman/agency/internal/llm"
	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOracle struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.Request
}

func (o *recordingOracle) Complete(_ context.Context, req llm.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reqs = append(o.reqs, req)
	return o.reply, o.err
}

func (o *recordingOracle) last(t *testing.T) llm.Request {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.reqs)
	return o.reqs[len(o.reqs)-1]
}

func mustNode(t *testing.T, id roles.ID, cfg Config) Node {
	t.Helper()
	n, err := New(id, cfg)
	require.NoError(t, err)
	return n
}

func TestProjectManagerAssignsTask(t *testing.T) {
	t.Parallel()

	oracle := &recordingOracle{reply: "Design the login page. [ACTION: ASSIGN_TO_DESIGNER]"}
	pm := mustNode(t, roles.ProjectManager, Config{Oracle: oracle})

	in := state.New().WithUserMessage("I need a todo app")
	out, err := pm(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "Project Manager", out.CurrentAgent)
	assert.Equal(t, directive.AssignToDesigner, out.NextAction)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, state.Message{Role: state.RoleAgent, Author: "Project Manager", Content: "Design the login page."}, out.Messages[1])
	require.NotNil(t, out.CurrentTask)
	assert.Equal(t, state.Task{AssignedRole: "designer", Description: "Design the login page."}, *out.CurrentTask)

	req := oracle.last(t)
	assert.Equal(t, "Project Manager", req.Role)
	assert.Contains(t, req.SystemPrompt, "[ACTION: ASSIGN_TO_DESIGNER]")
	assert.Equal(t, "Please process the client's request or continue with project management duties.", req.Context)
	assert.Equal(t, in.Messages, req.History)

	// The input state is never modified.
	assert.Len(t, in.Messages, 1)
	assert.Empty(t, in.CurrentAgent)
}

func TestProjectManagerAssignsDeveloper(t *testing.T) {
	t.Parallel()

	pm := mustNode(t, roles.ProjectManager, Config{Oracle: &recordingOracle{reply: "Build the API. [ACTION: ASSIGN_TO_DEVELOPER]"}})
	out, err := pm(context.Background(), state.New().WithUserMessage("go"))
	require.NoError(t, err)
	require.NotNil(t, out.CurrentTask)
	assert.Equal(t, "developer", out.CurrentTask.AssignedRole)
	assert.Equal(t, "Build the API.", out.CurrentTask.Description)
}

func TestProjectManagerCompletesTask(t *testing.T) {
	t.Parallel()

	for _, incoming := range []directive.Directive{directive.DesignComplete, directive.DevelopmentComplete} {
		t.Run(string(incoming), func(t *testing.T) {
			t.Parallel()

			oracle := &recordingOracle{reply: "Great work. [ACTION: PHASE_COMPLETE]"}
			pm := mustNode(t, roles.ProjectManager, Config{Oracle: oracle})

			in := state.New().
				WithUserMessage("todo app").
				WithCurrentTask(state.Task{AssignedRole: "designer", Description: "login page"}).
				WithAgentMessage("Designer", "mockups").
				WithNextAction(incoming)

			out, err := pm(context.Background(), in)
			require.NoError(t, err)
			assert.Nil(t, out.CurrentTask)
			require.Len(t, out.CompletedTasks, 1)
			assert.Equal(t, "login page", out.CompletedTasks[0].Description)
			assert.Contains(t, oracle.last(t).Context, "completed the task: login page.")
			assert.Equal(t, directive.PhaseComplete, out.NextAction)
		})
	}
}

func TestProjectManagerCompletesWithoutTaskInFlight(t *testing.T) {
	t.Parallel()

	for _, incoming := range []directive.Directive{directive.DesignComplete, directive.DevelopmentComplete} {
		t.Run(string(incoming), func(t *testing.T) {
			t.Parallel()

			oracle := &recordingOracle{reply: "Noted. [ACTION: PHASE_COMPLETE]"}
			pm := mustNode(t, roles.ProjectManager, Config{Oracle: oracle})

			in := state.New().
				WithUserMessage("todo app").
				WithAgentMessage("Architect", "done already").
				WithNextAction(incoming)
			require.Nil(t, in.CurrentTask)

			out, err := pm(context.Background(), in)
			require.NoError(t, err)
			assert.Nil(t, out.CurrentTask)
			assert.Equal(t, []state.Task{{}}, out.CompletedTasks)
			assert.Contains(t, oracle.last(t).Context, "completed the task: N/A.")
		})
	}
}

func TestProjectManagerStoresPlanFromArchitect(t *testing.T) {
	t.Parallel()

	pm := mustNode(t, roles.ProjectManager, Config{Oracle: &recordingOracle{reply: "Plan reviewed. [ACTION: INITIAL_PLANNING_COMPLETE]"}})

	in := state.New().
		WithUserMessage("todo app").
		WithAgentMessage("Architect", "Use Go and SQLite.").
		WithNextAction(directive.ArchitectDesignComplete)
	out, err := pm(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Use Go and SQLite.", out.ProjectPlan)

	// A second architect pass does not replace the plan.
	again := out.WithAgentMessage("Architect", "Actually use Rust.").WithNextAction(directive.ArchitectDesignComplete)
	out, err = pm(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, "Use Go and SQLite.", out.ProjectPlan)
}

func TestProjectManagerIgnoresPlanFromClientMessage(t *testing.T) {
	t.Parallel()

	pm := mustNode(t, roles.ProjectManager, Config{Oracle: &recordingOracle{reply: "ok [ACTION: CLARIFY_CLIENT_INPUT]"}})
	in := state.New().WithUserMessage("not a plan").WithNextAction(directive.ArchitectDesignComplete)
	out, err := pm(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out.ProjectPlan)
}

func TestDesignerRecordsLatestDesign(t *testing.T) {
	t.Parallel()

	oracle := &recordingOracle{reply: "Two-pane layout with a sidebar. [ACTION: DESIGN_COMPLETE]"}
	designer := mustNode(t, roles.Designer, Config{Oracle: oracle})

	in := state.New().
		WithProjectPlan("SPA + REST").
		WithCurrentTask(state.Task{AssignedRole: "designer", Description: "main screen"}).
		WithNextAction(directive.AssignToDesigner)
	out, err := designer(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "Designer", out.CurrentAgent)
	assert.Equal(t, "Two-pane layout with a sidebar.", out.LatestDesign)
	assert.Equal(t, directive.DesignComplete, out.NextAction)
	require.NotNil(t, out.CurrentTask, "specialists never complete tasks themselves")
	assert.Contains(t, oracle.last(t).Context, "'main screen'")
	assert.Contains(t, oracle.last(t).Context, "'SPA + REST'")
}

func TestDeveloperReadsLatestDesign(t *testing.T) {
	t.Parallel()

	oracle := &recordingOracle{reply: "Handlers and schema. [ACTION: DEVELOPMENT_COMPLETE]"}
	developer := mustNode(t, roles.Developer, Config{Oracle: oracle})

	in := state.New().
		WithAgentMessage("Designer", "this message mentions design but is not used").
		WithLatestDesign("sidebar layout")
	out, err := developer(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "sidebar layout", out.LatestDesign)
	assert.Contains(t, oracle.last(t).Context, "The latest design context is: sidebar layout")
}

func TestArchitectWithoutMarker(t *testing.T) {
	t.Parallel()

	architect := mustNode(t, roles.Architect, Config{Oracle: &recordingOracle{reply: "I forgot the marker"}})
	out, err := architect(context.Background(), state.New().WithUserMessage("x"))
	require.NoError(t, err)
	assert.Equal(t, directive.NoActionSpecified, out.NextAction)
	last, ok := out.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "I forgot the marker", last.Content)
}

func TestOracleFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	pm := mustNode(t, roles.ProjectManager, Config{Oracle: &recordingOracle{err: cause}})

	in := state.New().
		WithUserMessage("x").
		WithCurrentTask(state.Task{AssignedRole: "designer", Description: "d"}).
		WithNextAction(directive.DesignComplete)
	out, err := pm(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracle)
	assert.ErrorIs(t, err, cause)

	var oerr *OracleError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, "Project Manager", oerr.Role)
	assert.Equal(t, in, out)
}

func TestSystemPromptOverrideAndPerRoleOracle(t *testing.T) {
	t.Parallel()

	shared := &recordingOracle{reply: "[ACTION: PHASE_COMPLETE]"}
	dedicated := &recordingOracle{reply: "arch [ACTION: ARCHITECT_DESIGN_COMPLETE]"}
	nodes, err := All(Config{
		Oracle:        shared,
		Oracles:       map[roles.ID]llm.Oracle{roles.Architect: dedicated},
		SystemPrompts: map[roles.ID]string{roles.Architect: "custom architect prompt"},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	_, err = nodes[roles.Architect](context.Background(), state.New())
	require.NoError(t, err)
	assert.Equal(t, "custom architect prompt", dedicated.last(t).SystemPrompt)
	assert.Empty(t, shared.reqs)
}

func TestPacingHonorsCancellation(t *testing.T) {
	t.Parallel()

	oracle := &recordingOracle{reply: "[ACTION: PHASE_COMPLETE]"}
	pm := mustNode(t, roles.ProjectManager, Config{Oracle: oracle, Pacing: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	in := state.New().WithUserMessage("x")
	out, err := pm(ctx, in)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrOracle)
	assert.Equal(t, in, out)
	assert.Empty(t, oracle.reqs)
}

type recorder struct {
	mu    sync.Mutex
	calls []directive.Directive
	errs  int
}

func (r *recorder) ObserveNode(_ string, d directive.Directive, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs++
		return
	}
	r.calls = append(r.calls, d)
}

func TestRecorderObservesNodes(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	ok := mustNode(t, roles.Designer, Config{Oracle: &recordingOracle{reply: "[ACTION: DESIGN_COMPLETE]"}, Recorder: rec})
	bad := mustNode(t, roles.Developer, Config{Oracle: &recordingOracle{err: errors.New("boom")}, Recorder: rec})

	_, err := ok(context.Background(), state.New())
	require.NoError(t, err)
	_, err = bad(context.Background(), state.New())
	require.Error(t, err)

	assert.Equal(t, []directive.Directive{directive.DesignComplete}, rec.calls)
	assert.Equal(t, 1, rec.errs)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(roles.ProjectManager, Config{})
	require.Error(t, err)

	_, err = New("qa", Config{Oracle: &recordingOracle{}})
	require.Error(t, err)

	_, err = New(roles.Designer, Config{Oracle: &recordingOracle{}, Pacing: -time.Second})
	require.Error(t, err)
}
