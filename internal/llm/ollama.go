package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/metalagman/agency/internal/config"
)

const defaultOllamaURL = "http://localhost:11434"

type ollamaOracle struct {
	client      *api.Client
	model       string
	temperature float64
	maxTokens   int
}

func newOllama(cfg config.LLMConfig, model string, httpClient *http.Client) (Oracle, error) {
	host := strings.TrimSpace(cfg.BaseURL)
	if host == "" {
		host = defaultOllamaURL
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", host, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &ollamaOracle{
		client:      api.NewClient(base, httpClient),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *ollamaOracle) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]api.Message, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range leadingUser(req.Turns()) {
		role := "assistant"
		if turn.User {
			role = "user"
		}
		messages = append(messages, api.Message{Role: role, Content: turn.Text})
	}

	options := map[string]any{"temperature": o.temperature}
	if o.maxTokens > 0 {
		options["num_predict"] = o.maxTokens
	}
	stream := false
	chatReq := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var content strings.Builder
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	out := strings.TrimSpace(content.String())
	if out == "" {
		return "", fmt.Errorf("ollama response did not contain content")
	}
	return out, nil
}
