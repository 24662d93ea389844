package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DirName is the per-project state directory.
	DirName = ".agency"
	// EnvPrefix prefixes environment overrides, e.g. AGENCY_LLM_PROVIDER.
	EnvPrefix = "AGENCY"
)

var (
	// DefaultConfigPath is read when no --config flag is given.
	DefaultConfigPath = filepath.Join(DirName, "config.yaml")
	// DefaultStorePath is the session database location.
	DefaultStorePath = filepath.Join(DirName, "agency.db")
)

// Load builds the configuration from defaults, the config file at path,
// a .env file in the working directory and AGENCY_* environment variables,
// in increasing order of precedence. A missing file is an error only when
// path is not the default location.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, Default())

	if path == "" {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != DefaultConfigPath {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(" "),
	))); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Roles == nil {
		cfg.Roles = map[string]RoleConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.api_key_env", d.LLM.APIKeyEnv)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout.String())
	v.SetDefault("llm.cmd", d.LLM.Cmd)
	v.SetDefault("llm.script", d.LLM.Script)
	v.SetDefault("orchestrator.engine", d.Orchestrator.Engine)
	v.SetDefault("orchestrator.max_steps", d.Orchestrator.MaxSteps)
	v.SetDefault("orchestrator.pacing", d.Orchestrator.Pacing.String())
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("retention.keep_last", d.Retention.KeepLast)
	v.SetDefault("retention.keep_days", d.Retention.KeepDays)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
