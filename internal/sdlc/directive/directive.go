// Package directive extracts the routing keyword an agent embeds in its reply.
//
// Agents end their free-text output with a marker of the form
// "[ACTION: KEYWORD]". Everything before the marker is the visible
// content; the keyword decides which node runs next.
package directive

import "strings"

// Directive is an action keyword emitted by an agent.
type Directive string

const (
	HandoffToArchitect      Directive = "HANDOFF_TO_ARCHITECT"
	ArchitectDesignComplete Directive = "ARCHITECT_DESIGN_COMPLETE"
	InitialPlanningComplete Directive = "INITIAL_PLANNING_COMPLETE"
	AssignToDesigner        Directive = "ASSIGN_TO_DESIGNER"
	AssignToDeveloper       Directive = "ASSIGN_TO_DEVELOPER"
	DesignComplete          Directive = "DESIGN_COMPLETE"
	DevelopmentComplete     Directive = "DEVELOPMENT_COMPLETE"
	RequestClarification    Directive = "REQUEST_CLARIFICATION"
	RequestRevision         Directive = "REQUEST_REVISION"
	PhaseComplete           Directive = "PHASE_COMPLETE"
	ClarifyClientInput      Directive = "CLARIFY_CLIENT_INPUT"

	// NoActionSpecified is returned when the text carries no complete marker.
	NoActionSpecified Directive = "NO_ACTION_SPECIFIED"
)

const (
	markerOpen  = "[ACTION:"
	markerClose = "]"
)

var vocabulary = []Directive{
	HandoffToArchitect,
	ArchitectDesignComplete,
	InitialPlanningComplete,
	AssignToDesigner,
	AssignToDeveloper,
	DesignComplete,
	DevelopmentComplete,
	RequestClarification,
	RequestRevision,
	PhaseComplete,
	ClarifyClientInput,
}

// Result is the outcome of parsing one agent reply.
type Result struct {
	Content   string    `json:"content"`
	Directive Directive `json:"directive"`
}

// Parse splits text into visible content and the directive of the first
// "[ACTION: ...]" marker. Text after the closing bracket is dropped.
// A missing marker or a marker without a closing bracket yields the full
// text and NoActionSpecified.
func Parse(text string) Result {
	start := strings.Index(text, markerOpen)
	if start < 0 {
		return Result{Content: text, Directive: NoActionSpecified}
	}
	rest := text[start+len(markerOpen):]
	end := strings.Index(rest, markerClose)
	if end < 0 {
		return Result{Content: text, Directive: NoActionSpecified}
	}
	return Result{
		Content:   strings.TrimSpace(text[:start]),
		Directive: Directive(strings.ToUpper(strings.TrimSpace(rest[:end]))),
	}
}

// Format renders content followed by a directive marker. Parse(Format(c, d))
// returns the trimmed content and d.
func Format(content string, d Directive) string {
	if content == "" {
		return markerOpen + " " + string(d) + markerClose
	}
	return content + "\n\n" + markerOpen + " " + string(d) + markerClose
}

// Known reports whether d belongs to the directive vocabulary.
// The NoActionSpecified sentinel is not part of it.
func Known(d Directive) bool {
	for _, v := range vocabulary {
		if v == d {
			return true
		}
	}
	return false
}

// All returns the directive vocabulary in declaration order.
func All() []Directive {
	out := make([]Directive, len(vocabulary))
	copy(out, vocabulary)
	return out
}

func (d Directive) String() string {
	return string(d)
}
