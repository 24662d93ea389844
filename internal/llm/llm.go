// Package llm provides the completion oracles agents talk to.
//
// Every provider reduces to a single call: given a system prompt, an
// optional role context and the conversation so far, return the model's
// raw reply text.
package llm

import (
	"context"
	"strings"

	"github.com/metalagman/agency/internal/sdlc/state"
)

// Request is one completion request.
type Request struct {
	// Role is the display name of the agent asking.
	Role         string
	SystemPrompt string
	// Context is the per-turn framing, sent as the closing user message
	// after the history. Empty means none.
	Context string
	History []state.Message
}

// Oracle completes a request. Implementations must be safe for
// concurrent use.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f OracleFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Turn is a provider-neutral chat message.
type Turn struct {
	// User is true for messages the model should treat as input rather
	// than its own prior output.
	User bool
	Text string
}

// Turns flattens a request into chat turns. The history comes first and
// the context closes the request, so the model always answers a user turn.
// Agent messages keep their "[Author]: " prefix so every agent can tell who
// said what, and are replayed as assistant turns. Client and system
// messages are user turns. Without a context, a history that ends on an
// agent message gets a short cue naming the role expected to answer.
func (r Request) Turns() []Turn {
	turns := make([]Turn, 0, len(r.History)+1)
	for _, m := range r.History {
		turns = append(turns, Turn{User: m.Role != state.RoleAgent, Text: m.String()})
	}
	if strings.TrimSpace(r.Context) != "" {
		return append(turns, Turn{User: true, Text: r.Context})
	}
	if len(turns) > 0 && !turns[len(turns)-1].User {
		turns = append(turns, Turn{User: true, Text: r.respondCue()})
	}
	return turns
}

func (r Request) respondCue() string {
	if r.Role == "" {
		return "Respond with your next message."
	}
	return "Respond as " + r.Role + "."
}

// Transcript renders the request as a single text block for providers that
// take one input string.
func (r Request) Transcript() string {
	var b strings.Builder
	if strings.TrimSpace(r.Context) != "" {
		b.WriteString(r.Context)
		b.WriteString("\n\n")
	}
	if len(r.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range r.History {
			b.WriteString(m.String())
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
