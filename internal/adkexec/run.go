// Package adkexec runs the delivery graph through the ADK runner.
package adkexec

import (
	"context"
	"fmt"

	"google.golang.org/adk/agent"
	adkrunner "google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	appName = "agency"
	userID  = "agency-client"
)

// invocation is one ADK run over a throwaway in-memory session.
type invocation struct {
	agent   agent.Agent
	state   map[string]any
	message string
	// onEvent sees every event; returning false stops the run.
	onEvent func(*session.Event) bool
}

// run executes the invocation and returns the session as the runner left it.
func (inv invocation) run(ctx context.Context) (session.Session, error) {
	if inv.agent == nil {
		return nil, fmt.Errorf("agent is required")
	}

	sessions := session.InMemoryService()
	r, err := adkrunner.New(adkrunner.Config{
		AppName:        appName,
		Agent:          inv.agent,
		SessionService: sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("create ADK runner: %w", err)
	}
	created, err := sessions.Create(ctx, &session.CreateRequest{
		AppName: appName,
		UserID:  userID,
		State:   inv.state,
	})
	if err != nil {
		return nil, fmt.Errorf("create ADK session: %w", err)
	}
	id := created.Session.ID()

	var content *genai.Content
	if inv.message != "" {
		content = genai.NewContentFromText(inv.message, genai.RoleUser)
	}
	for ev, err := range r.Run(ctx, userID, id, content, agent.RunConfig{}) {
		if err != nil {
			return nil, err
		}
		if ev == nil || inv.onEvent == nil {
			continue
		}
		if !inv.onEvent(ev) {
			break
		}
	}

	got, err := sessions.Get(ctx, &session.GetRequest{AppName: appName, UserID: userID, SessionID: id})
	if err != nil {
		return nil, fmt.Errorf("get ADK session: %w", err)
	}
	return got.Session, nil
}
