package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/metalagman/agency/internal/config"
	"github.com/metalagman/agency/internal/sdlc/roles"
)

// continuePrompt opens a conversation that would otherwise start with an
// assistant turn. Chat APIs reject that.
const continuePrompt = "Continue the conversation."

// Option customizes provider construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used by network providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the oracle for cfg using model.
func New(ctx context.Context, cfg config.LLMConfig, model string, opts ...Option) (Oracle, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(model) == "" {
		model = cfg.Model
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return newOpenAI(cfg, model, o.httpClient)
	case config.ProviderOllama:
		return newOllama(cfg, model, o.httpClient)
	case config.ProviderGemini:
		return newGemini(ctx, cfg, model, o.httpClient)
	case config.ProviderAnthropic:
		return newAnthropic(cfg, model, o.httpClient)
	case config.ProviderExec:
		return newExec(cfg)
	case config.ProviderScript:
		s, err := LoadScript(cfg.Script)
		if err != nil {
			return nil, err
		}
		return NewScriptOracle(s), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// ForRoles builds the default oracle plus one oracle per role whose model
// differs from the default.
func ForRoles(ctx context.Context, cfg config.Config, opts ...Option) (Oracle, map[roles.ID]Oracle, error) {
	def, err := New(ctx, cfg.LLM, cfg.LLM.Model, opts...)
	if err != nil {
		return nil, nil, err
	}
	perRole := make(map[roles.ID]Oracle)
	if cfg.LLM.Provider == config.ProviderExec || cfg.LLM.Provider == config.ProviderScript {
		return def, perRole, nil
	}
	for _, r := range roles.All() {
		model := cfg.ModelFor(string(r.ID()))
		if model == cfg.LLM.Model {
			continue
		}
		o, err := New(ctx, cfg.LLM, model, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle for %s: %w", r.ID(), err)
		}
		perRole[r.ID()] = o
	}
	return def, perRole, nil
}

func resolveAPIKey(cfg config.LLMConfig, defaultEnv string) (string, error) {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	env := strings.TrimSpace(cfg.APIKeyEnv)
	if env == "" {
		env = defaultEnv
	}
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" {
		return "", fmt.Errorf("%s api key is required (set llm.api_key or %s)", cfg.Provider, env)
	}
	return key, nil
}

func leadingUser(turns []Turn) []Turn {
	if len(turns) > 0 && turns[0].User {
		return turns
	}
	return append([]Turn{{User: true, Text: continuePrompt}}, turns...)
}

func roleKey(role string) (string, bool) {
	id, err := roles.Parse(role)
	if err != nil {
		return "", false
	}
	return string(id), true
}
