// Package mcpserver exposes the session entry point as MCP tools.
package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/metalagman/agency/internal/session"
)

// Sessions is the part of the session service the tools use.
type Sessions interface {
	Create(ctx context.Context) (session.Info, error)
	Get(ctx context.Context, id string) (session.Info, error)
	List(ctx context.Context) ([]session.Info, error)
	Send(ctx context.Context, id, utterance string) (session.TurnResult, error)
	Reset(ctx context.Context, id string) (session.Info, error)
}

// SessionArgs selects a session.
type SessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"the session id returned by create_session"`
}

// MessageArgs is a client utterance for a session.
type MessageArgs struct {
	SessionID string `json:"session_id" jsonschema:"the session id returned by create_session"`
	Message   string `json:"message"    jsonschema:"what the client says to the project manager"`
}

// Message is one transcript entry.
type Message struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// SessionView is a session as tools report it.
type SessionView struct {
	SessionID      string    `json:"session_id"`
	Status         string    `json:"status"`
	Turns          int       `json:"turns"`
	NextAction     string    `json:"next_action,omitempty"`
	ProjectPlan    string    `json:"project_plan,omitempty"`
	CurrentTask    string    `json:"current_task,omitempty"`
	CompletedTasks int       `json:"completed_tasks"`
	Messages       []Message `json:"messages,omitempty"`
}

// TurnView is the result of send_message.
type TurnView struct {
	SessionID  string    `json:"session_id"`
	Outcome    string    `json:"outcome"`
	Replies    []Message `json:"replies"`
	NextAction string    `json:"next_action,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// SessionList is the result of list_sessions.
type SessionList struct {
	Sessions []SessionView `json:"sessions"`
}

// New builds the MCP server.
func New(sessions Sessions, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "agency", Version: version}, nil)
	h := &handlers{sessions: sessions}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_session",
		Description: "Start a new conversation with the agency. Returns the session id.",
	}, h.createSession)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a client message and run the agents until they finish or need client input.",
	}, h.sendMessage)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_session",
		Description: "Show the transcript, plan and task ledger of a session.",
	}, h.getSession)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "reset_session",
		Description: "Clear a session back to an empty conversation.",
	}, h.resetSession)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List sessions, newest first.",
	}, h.listSessions)
	return srv
}

// Serve runs the server over stdio until ctx is done or the client hangs up.
func Serve(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}

type handlers struct {
	sessions Sessions
}

func (h *handlers) createSession(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, SessionView, error) {
	info, err := h.sessions.Create(ctx)
	if err != nil {
		return nil, SessionView{}, err
	}
	return nil, view(info), nil
}

func (h *handlers) sendMessage(ctx context.Context, _ *mcp.CallToolRequest, args MessageArgs) (*mcp.CallToolResult, TurnView, error) {
	res, err := h.sessions.Send(ctx, args.SessionID, args.Message)
	if err != nil && res.Outcome == "" {
		return nil, TurnView{}, err
	}
	out := TurnView{
		SessionID:  args.SessionID,
		Outcome:    string(res.Outcome),
		Replies:    make([]Message, 0, len(res.Steps)),
		NextAction: string(res.State.NextAction),
	}
	for _, step := range res.Steps {
		out.Replies = append(out.Replies, Message{Speaker: step.Role, Content: step.Content})
	}
	if err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

func (h *handlers) getSession(ctx context.Context, _ *mcp.CallToolRequest, args SessionArgs) (*mcp.CallToolResult, SessionView, error) {
	if args.SessionID == "" {
		return nil, SessionView{}, errors.New("session_id is required")
	}
	info, err := h.sessions.Get(ctx, args.SessionID)
	if err != nil {
		return nil, SessionView{}, err
	}
	return nil, view(info), nil
}

func (h *handlers) resetSession(ctx context.Context, _ *mcp.CallToolRequest, args SessionArgs) (*mcp.CallToolResult, SessionView, error) {
	info, err := h.sessions.Reset(ctx, args.SessionID)
	if err != nil {
		return nil, SessionView{}, err
	}
	return nil, view(info), nil
}

func (h *handlers) listSessions(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, SessionList, error) {
	items, err := h.sessions.List(ctx)
	if err != nil {
		return nil, SessionList{}, err
	}
	out := SessionList{Sessions: make([]SessionView, 0, len(items))}
	for _, info := range items {
		v := view(info)
		v.Messages = nil
		out.Sessions = append(out.Sessions, v)
	}
	return nil, out, nil
}

func view(info session.Info) SessionView {
	v := SessionView{
		SessionID:      info.ID,
		Status:         info.Status,
		Turns:          info.Turns,
		NextAction:     string(info.State.NextAction),
		ProjectPlan:    info.State.ProjectPlan,
		CompletedTasks: len(info.State.CompletedTasks),
		Messages:       make([]Message, 0, len(info.State.Messages)),
	}
	if t := info.State.CurrentTask; t != nil {
		v.CurrentTask = t.AssignedRole + ": " + t.Description
	}
	for _, m := range info.State.Messages {
		v.Messages = append(v.Messages, Message{Speaker: m.Speaker(), Content: m.Content})
	}
	return v
}
