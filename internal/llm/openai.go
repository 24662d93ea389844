package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/metalagman/agency/internal/config"
)

const defaultOpenAIKeyEnv = "OPENAI_API_KEY"

// openAIOracle answers through the Responses API. The conversation is sent
// as one rendered input; the role prompt goes in as instructions.
type openAIOracle struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

func newOpenAI(cfg config.LLMConfig, model string, httpClient *http.Client) (Oracle, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	apiKey, err := resolveAPIKey(cfg, defaultOpenAIKeyEnv)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &openAIOracle{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
	}, nil
}

func (o *openAIOracle) Complete(ctx context.Context, req Request) (string, error) {
	params := responses.ResponseNewParams{
		Model:       o.model,
		Input:       responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Transcript())},
		Temperature: openai.Float(o.temperature),
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.Instructions = openai.String(req.SystemPrompt)
	}
	if o.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses.create: %w", err)
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return "", fmt.Errorf("openai response failed: %s", msg)
	}
	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", fmt.Errorf("openai response did not contain output text")
	}
	return out, nil
}
