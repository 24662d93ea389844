// Package roles holds the agent roles, their system prompts and the
// per-turn context each role receives.
package roles

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/state"
)

// ID identifies a role and the graph node that plays it.
type ID string

const (
	ProjectManager ID = "project_manager"
	Architect      ID = "architect"
	Designer       ID = "designer"
	Developer      ID = "developer"
)

// Route tells an agent when to emit a directive.
type Route struct {
	When      string
	Directive directive.Directive
}

// Role is a registered agent role.
type Role struct {
	id          ID
	name        string
	description string
	routes      []Route
	tmpl        *template.Template
}

var (
	registry = make(map[ID]*Role)
	initOnce sync.Once
)

//go:embed common.gotmpl
var commonTemplate string

//go:embed project_manager.gotmpl
var projectManagerTemplate string

//go:embed architect.gotmpl
var architectTemplate string

//go:embed designer.gotmpl
var designerTemplate string

//go:embed developer.gotmpl
var developerTemplate string

func initializeRoles() {
	initOnce.Do(func() {
		mustRegister(ProjectManager, "Project Manager", "Owns scope, plans work and assigns tasks.", projectManagerTemplate, []Route{
			{When: "You need more information from the client", Directive: directive.ClarifyClientInput},
			{When: "The requirements are clear enough for the Architect to start designing", Directive: directive.HandoffToArchitect},
			{When: "You reviewed the architecture and the initial planning phase is complete", Directive: directive.InitialPlanningComplete},
			{When: "You are assigning a task to the Designer", Directive: directive.AssignToDesigner},
			{When: "You are assigning a task to the Developer", Directive: directive.AssignToDeveloper},
			{When: "You reviewed another agent's output and want it revised (add your feedback)", Directive: directive.RequestRevision},
			{When: "The current phase is complete", Directive: directive.PhaseComplete},
		})
		mustRegister(Architect, "Architect", "Designs the technical architecture.", architectTemplate, []Route{
			{When: "Your architectural design is ready for the Project Manager to review", Directive: directive.ArchitectDesignComplete},
			{When: "You need more information from the Project Manager (add your question)", Directive: directive.RequestClarification},
		})
		mustRegister(Designer, "Designer", "Produces UI/UX designs for assigned tasks.", designerTemplate, []Route{
			{When: "Your design task is ready for the Project Manager to review", Directive: directive.DesignComplete},
			{When: "You need more information from the Project Manager or Architect (add your question)", Directive: directive.RequestClarification},
		})
		mustRegister(Developer, "Developer", "Plans the technical implementation of assigned tasks.", developerTemplate, []Route{
			{When: "Your development task is ready for the Project Manager to review", Directive: directive.DevelopmentComplete},
			{When: "You need more information from the Project Manager or Designer (add your question)", Directive: directive.RequestClarification},
		})
	})
}

func mustRegister(id ID, name, description, roleTmpl string, routes []Route) {
	tmpl := template.Must(template.New(string(id)).Parse(commonTemplate))
	tmpl = template.Must(tmpl.Parse(roleTmpl))
	registry[id] = &Role{
		id:          id,
		name:        name,
		description: description,
		routes:      routes,
		tmpl:        tmpl,
	}
}

// Get returns the role registered under id, or nil.
func Get(id ID) *Role {
	initializeRoles()
	return registry[id]
}

// All returns every role in graph order.
func All() []*Role {
	initializeRoles()
	return []*Role{registry[ProjectManager], registry[Architect], registry[Designer], registry[Developer]}
}

// Parse resolves a node identifier or a display name to a role ID.
func Parse(s string) (ID, error) {
	initializeRoles()
	key := strings.TrimSpace(s)
	for id, r := range registry {
		if strings.EqualFold(key, string(id)) || strings.EqualFold(key, r.name) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r *Role) ID() ID              { return r.id }
func (r *Role) Name() string        { return r.name }
func (r *Role) Description() string { return r.description }

// Routes returns the directives the role is instructed to emit.
func (r *Role) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// SystemPrompt renders the role's fixed instructions.
func (r *Role) SystemPrompt() (string, error) {
	var buf bytes.Buffer
	data := struct {
		Name   string
		Routes []Route
	}{
		Name:   r.name,
		Routes: r.routes,
	}
	if err := r.tmpl.ExecuteTemplate(&buf, "system", data); err != nil {
		return "", fmt.Errorf("execute %s system prompt: %w", r.id, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Context renders the turn-specific framing for the role. incoming is the
// directive that routed control to this node. An empty result means the
// role gets no extra framing.
func (r *Role) Context(s state.State, incoming directive.Directive) (string, error) {
	var buf bytes.Buffer
	data := contextData{State: s, Incoming: string(incoming)}
	if err := r.tmpl.ExecuteTemplate(&buf, "context", data); err != nil {
		return "", fmt.Errorf("execute %s context: %w", r.id, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

type contextData struct {
	State    state.State
	Incoming string
}

func (d contextData) TaskDescription(fallback string) string {
	if d.State.CurrentTask == nil || d.State.CurrentTask.Description == "" {
		return fallback
	}
	return d.State.CurrentTask.Description
}

func (d contextData) Plan(fallback string) string {
	if d.State.ProjectPlan == "" {
		return fallback
	}
	return d.State.ProjectPlan
}
