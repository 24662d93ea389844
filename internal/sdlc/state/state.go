// Package state defines the conversation state shared by all agent nodes.
//
// State is a value. Mutators return a new State and never alias the
// receiver's slices, so a failed step can always fall back to the state it
// started from.
package state

import (
	"fmt"
	"strings"

	"github.com/metalagman/agency/internal/sdlc/directive"
)

// MessageRole tells who produced a message.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    MessageRole `json:"role" yaml:"role"`
	Author  string      `json:"author,omitempty" yaml:"author,omitempty"`
	Content string      `json:"content" yaml:"content"`
}

// String renders the message the way agents see it in their history.
func (m Message) String() string {
	return "[" + m.Speaker() + "]: " + m.Content
}

// Speaker names who said the message.
func (m Message) Speaker() string {
	switch m.Role {
	case RoleUser:
		return "Client"
	case RoleSystem:
		return "System"
	}
	if m.Author == "" {
		return "Agent"
	}
	return m.Author
}

// Task is a unit of work handed from the project manager to a specialist.
type Task struct {
	AssignedRole string `json:"assigned_role" yaml:"assigned_role"`
	Description  string `json:"description" yaml:"description"`
}

// State is the shared record passed between agent nodes.
type State struct {
	Messages       []Message           `json:"messages" yaml:"messages"`
	NextAction     directive.Directive `json:"next_action,omitempty" yaml:"next_action,omitempty"`
	ProjectPlan    string              `json:"project_plan,omitempty" yaml:"project_plan,omitempty"`
	CurrentTask    *Task               `json:"current_task,omitempty" yaml:"current_task,omitempty"`
	CompletedTasks []Task              `json:"completed_tasks" yaml:"completed_tasks"`
	CurrentAgent   string              `json:"current_agent,omitempty" yaml:"current_agent,omitempty"`
	LatestDesign   string              `json:"latest_design,omitempty" yaml:"latest_design,omitempty"`
}

// New returns the empty initial state.
func New() State {
	return State{
		Messages:       []Message{},
		CompletedTasks: []Task{},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Messages = append(make([]Message, 0, len(s.Messages)+1), s.Messages...)
	out.CompletedTasks = append(make([]Task, 0, len(s.CompletedTasks)+1), s.CompletedTasks...)
	if s.CurrentTask != nil {
		task := *s.CurrentTask
		out.CurrentTask = &task
	}
	return out
}

// WithMessage appends msg to the history.
func (s State) WithMessage(msg Message) State {
	out := s.Clone()
	out.Messages = append(out.Messages, msg)
	return out
}

// WithUserMessage appends a client utterance.
func (s State) WithUserMessage(text string) State {
	return s.WithMessage(Message{Role: RoleUser, Content: text})
}

// WithAgentMessage appends a message authored by the named role.
func (s State) WithAgentMessage(author, text string) State {
	return s.WithMessage(Message{Role: RoleAgent, Author: author, Content: text})
}

// WithNextAction records the directive the router will consume.
func (s State) WithNextAction(d directive.Directive) State {
	out := s.Clone()
	out.NextAction = d
	return out
}

// WithProjectPlan sets the plan once. Later calls, and calls with an empty
// plan, leave the state unchanged.
func (s State) WithProjectPlan(plan string) State {
	out := s.Clone()
	if out.ProjectPlan == "" && plan != "" {
		out.ProjectPlan = plan
	}
	return out
}

// WithCurrentTask replaces the in-flight task.
func (s State) WithCurrentTask(task Task) State {
	out := s.Clone()
	out.CurrentTask = &task
	return out
}

// CompleteCurrentTask moves the in-flight task to CompletedTasks. Every
// call records exactly one completion; with nothing in flight the entry is
// an empty Task.
func (s State) CompleteCurrentTask() State {
	out := s.Clone()
	var done Task
	if out.CurrentTask != nil {
		done = *out.CurrentTask
	}
	out.CompletedTasks = append(out.CompletedTasks, done)
	out.CurrentTask = nil
	return out
}

// WithCurrentAgent records which role is executing.
func (s State) WithCurrentAgent(name string) State {
	out := s.Clone()
	out.CurrentAgent = name
	return out
}

// WithLatestDesign stores the designer's most recent output.
func (s State) WithLatestDesign(design string) State {
	out := s.Clone()
	out.LatestDesign = design
	return out
}

// LastMessage returns the newest message and false when the history is empty.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

const summaryWidth = 50

// Summary renders a condensed one-line view for debug logs.
func (s State) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "agent=%q next=%q messages=%d completed=%d",
		s.CurrentAgent, s.NextAction, len(s.Messages), len(s.CompletedTasks))
	if s.CurrentTask != nil {
		fmt.Fprintf(&b, " task=%s:%q", s.CurrentTask.AssignedRole, truncate(s.CurrentTask.Description, summaryWidth))
	}
	if s.ProjectPlan != "" {
		fmt.Fprintf(&b, " plan=%q", truncate(s.ProjectPlan, summaryWidth))
	}
	if last, ok := s.LastMessage(); ok {
		fmt.Fprintf(&b, " last=%q", truncate(last.String(), summaryWidth))
	}
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
