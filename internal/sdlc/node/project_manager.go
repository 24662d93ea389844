package node

import (
	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/state"
)

// applyIncoming performs the project manager's bookkeeping for the
// directive that routed control back to it.
func applyIncoming(st state.State, incoming directive.Directive) state.State {
	switch incoming {
	case directive.ArchitectDesignComplete:
		if last, ok := st.LastMessage(); ok && last.Role == state.RoleAgent {
			return st.WithProjectPlan(last.Content)
		}
		return st
	case directive.DesignComplete, directive.DevelopmentComplete:
		return st.CompleteCurrentTask()
	default:
		return st
	}
}

// applyAssignment turns an assignment reply into the current task. The
// visible reply text is the task description.
func applyAssignment(st state.State, res directive.Result) state.State {
	switch res.Directive {
	case directive.AssignToDesigner:
		return st.WithCurrentTask(state.Task{AssignedRole: string(roles.Designer), Description: res.Content})
	case directive.AssignToDeveloper:
		return st.WithCurrentTask(state.Task{AssignedRole: string(roles.Developer), Description: res.Content})
	default:
		return st
	}
}
