package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/metalagman/agency/internal/config"
)

const defaultGeminiKeyEnv = "GEMINI_API_KEY"

type geminiOracle struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func newGemini(ctx context.Context, cfg config.LLMConfig, model string, httpClient *http.Client) (Oracle, error) {
	apiKey, err := resolveAPIKey(cfg, defaultGeminiKeyEnv)
	if err != nil {
		return nil, err
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		clientCfg.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiOracle{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (o *geminiOracle) Complete(ctx context.Context, req Request) (string, error) {
	turns := leadingUser(req.Turns())
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.Role(genai.RoleModel)
		if turn.User {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(o.temperature),
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if o.maxTokens > 0 {
		genCfg.MaxOutputTokens = o.maxTokens
	}

	result, err := o.client.Models.GenerateContent(ctx, o.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	out := strings.TrimSpace(result.Text())
	if out == "" {
		return "", fmt.Errorf("gemini response did not contain text")
	}
	return out, nil
}
