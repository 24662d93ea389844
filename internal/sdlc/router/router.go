// Package router maps directives to the node that runs next.
package router

import (
	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/roles"
)

// Target is the next hop: a role node or a terminal.
type Target string

const (
	ProjectManager Target = Target(roles.ProjectManager)
	Architect      Target = Target(roles.Architect)
	Designer       Target = Target(roles.Designer)
	Developer      Target = Target(roles.Developer)

	// TerminalDone ends the run because the phase is complete.
	TerminalDone Target = "end:done"
	// TerminalAwaitingInput ends the run until the client answers.
	TerminalAwaitingInput Target = "end:awaiting_input"
)

// Terminal reports whether t ends the run.
func (t Target) Terminal() bool {
	return t == TerminalDone || t == TerminalAwaitingInput
}

// Role returns the role node behind t. It is empty for terminals.
func (t Target) Role() roles.ID {
	if t.Terminal() {
		return ""
	}
	return roles.ID(t)
}

func (t Target) String() string {
	return string(t)
}

var table = map[directive.Directive]Target{
	directive.HandoffToArchitect:      Architect,
	directive.ArchitectDesignComplete: ProjectManager,
	directive.InitialPlanningComplete: ProjectManager,
	directive.AssignToDesigner:        Designer,
	directive.DesignComplete:          ProjectManager,
	directive.AssignToDeveloper:       Developer,
	directive.DevelopmentComplete:     ProjectManager,
	directive.RequestClarification:    ProjectManager,
	directive.RequestRevision:         ProjectManager,
	directive.PhaseComplete:           TerminalDone,
	directive.ClarifyClientInput:      TerminalAwaitingInput,
}

// Route returns the target for d. Anything outside the vocabulary,
// including the no-action sentinel, falls back to the project manager.
func Route(d directive.Directive) Target {
	if t, ok := table[d]; ok {
		return t
	}
	return ProjectManager
}

// Edges lists the hops each node may take.
var Edges = map[roles.ID][]Target{
	roles.ProjectManager: {Architect, Designer, Developer, ProjectManager, TerminalDone, TerminalAwaitingInput},
	roles.Architect:      {ProjectManager, TerminalDone, TerminalAwaitingInput},
	roles.Designer:       {ProjectManager, TerminalDone, TerminalAwaitingInput},
	roles.Developer:      {ProjectManager, TerminalDone, TerminalAwaitingInput},
}

// Allowed reports whether from may hand control to to.
func Allowed(from roles.ID, to Target) bool {
	for _, t := range Edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Next routes d emitted by from. A hop outside the node's edges is sent to
// the project manager instead; redirected reports when that happened.
func Next(from roles.ID, d directive.Directive) (target Target, redirected bool) {
	target = Route(d)
	if Allowed(from, target) {
		return target, false
	}
	return ProjectManager, true
}
