// Package config provides configuration loading and management for agency.
package config

import (
	"fmt"
	"slices"
	"time"
)

// LLM provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderExec      = "exec"
	ProviderScript    = "script"
)

// Orchestration engines.
const (
	EngineNative = "native"
	EngineADK    = "adk"
)

// Providers lists the supported LLM providers.
var Providers = []string{ProviderOpenAI, ProviderOllama, ProviderGemini, ProviderAnthropic, ProviderExec, ProviderScript}

// Config is the root configuration.
type Config struct {
	LLM          LLMConfig             `json:"llm"          mapstructure:"llm"`
	Orchestrator OrchestratorConfig    `json:"orchestrator" mapstructure:"orchestrator"`
	Roles        map[string]RoleConfig `json:"roles"        mapstructure:"roles"`
	Store        StoreConfig           `json:"store"        mapstructure:"store"`
	Retention    RetentionPolicy       `json:"retention"    mapstructure:"retention"`
	Server       ServerConfig          `json:"server"       mapstructure:"server"`
	Log          LogConfig             `json:"log"          mapstructure:"log"`
}

// LLMConfig describes how agents reach their model.
type LLMConfig struct {
	Provider    string        `json:"provider"              mapstructure:"provider"`
	Model       string        `json:"model,omitempty"       mapstructure:"model"`
	BaseURL     string        `json:"base_url,omitempty"    mapstructure:"base_url"`
	APIKey      string        `json:"api_key,omitempty"     mapstructure:"api_key"`
	APIKeyEnv   string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Temperature float64       `json:"temperature"           mapstructure:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"  mapstructure:"max_tokens"`
	Timeout     time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
	// Cmd is the agent command line for the exec provider.
	Cmd    []string `json:"cmd,omitempty"     mapstructure:"cmd"`
	UseTTY *bool    `json:"use_tty,omitempty" mapstructure:"use_tty"`
	// Script is the reply file for the script provider.
	Script string `json:"script,omitempty" mapstructure:"script"`
}

// OrchestratorConfig bounds and paces graph runs.
type OrchestratorConfig struct {
	Engine   string        `json:"engine"    mapstructure:"engine"`
	MaxSteps int           `json:"max_steps" mapstructure:"max_steps"`
	Pacing   time.Duration `json:"pacing"    mapstructure:"pacing"`
}

// RoleConfig overrides a single role. Keys of Config.Roles are node ids
// such as "project_manager".
type RoleConfig struct {
	SystemPrompt string `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Model        string `json:"model,omitempty"         mapstructure:"model"`
}

// StoreConfig locates the session database.
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// RetentionPolicy defines how many old sessions to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level"  mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o",
			Temperature: 0.7,
			Timeout:     120 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			Engine:   EngineNative,
			MaxSteps: 25,
		},
		Roles:  map[string]RoleConfig{},
		Store:  StoreConfig{Path: DefaultStorePath},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Validate checks the decoded configuration.
func (c Config) Validate() error {
	if !slices.Contains(Providers, c.LLM.Provider) {
		return fmt.Errorf("llm.provider %q is not supported (want one of %v)", c.LLM.Provider, Providers)
	}
	if c.LLM.Provider == ProviderExec && len(c.LLM.Cmd) == 0 {
		return fmt.Errorf("llm.cmd is required for the exec provider")
	}
	if c.LLM.Provider == ProviderScript && c.LLM.Script == "" {
		return fmt.Errorf("llm.script is required for the script provider")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	if c.Orchestrator.Engine != EngineNative && c.Orchestrator.Engine != EngineADK {
		return fmt.Errorf("orchestrator.engine %q is not supported", c.Orchestrator.Engine)
	}
	if c.Orchestrator.MaxSteps <= 0 {
		return fmt.Errorf("orchestrator.max_steps must be > 0")
	}
	if c.Orchestrator.Pacing < 0 {
		return fmt.Errorf("orchestrator.pacing must be >= 0")
	}
	if c.Retention.KeepLast < 0 || c.Retention.KeepDays < 0 {
		return fmt.Errorf("retention values must be >= 0")
	}
	return nil
}

// ModelFor returns the model a role should use.
func (c Config) ModelFor(role string) string {
	if rc, ok := c.Roles[role]; ok && rc.Model != "" {
		return rc.Model
	}
	return c.LLM.Model
}
