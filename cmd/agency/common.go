package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/agency/internal/adkexec"
	"github.com/metalagman/agency/internal/config"
	"github.com/metalagman/agency/internal/db"
	"github.com/metalagman/agency/internal/llm"
	"github.com/metalagman/agency/internal/metrics"
	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/node"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/session"
)

// app holds everything a command needs to run turns.
type app struct {
	cfg      config.Config
	db       *sql.DB
	recorder *metrics.Recorder
	sessions *session.Service
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	storeDB, err := db.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	rec := metrics.New()
	engine, err := buildEngine(ctx, cfg, rec)
	if err != nil {
		_ = storeDB.Close()
		return nil, err
	}
	svc := session.New(db.NewStore(storeDB), engine,
		session.WithLockDir(lockDir(cfg)),
		session.WithObserver(rec),
	)
	return &app{cfg: cfg, db: storeDB, recorder: rec, sessions: svc}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func lockDir(cfg config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Store.Path), "locks")
}

// buildEngine wires oracles, nodes and the orchestrator for the configured
// engine.
func buildEngine(ctx context.Context, cfg config.Config, rec node.Recorder) (session.Engine, error) {
	oracle, perRole, err := llm.ForRoles(ctx, cfg)
	if err != nil {
		return nil, err
	}
	prompts := make(map[roles.ID]string)
	for key, rc := range cfg.Roles {
		if rc.SystemPrompt == "" {
			continue
		}
		id, err := roles.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("roles.%s: %w", key, err)
		}
		prompts[id] = rc.SystemPrompt
	}
	nodes, err := node.All(node.Config{
		Oracle:        oracle,
		Oracles:       perRole,
		SystemPrompts: prompts,
		Pacing:        cfg.Orchestrator.Pacing,
		Recorder:      rec,
	})
	if err != nil {
		return nil, err
	}
	orchestrator, err := graph.New(nodes, graph.WithMaxSteps(cfg.Orchestrator.MaxSteps))
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Str("engine", cfg.Orchestrator.Engine).
		Int("max_steps", orchestrator.MaxSteps()).
		Msg("engine ready")

	if cfg.Orchestrator.Engine == config.EngineADK {
		return adkexec.NewEngine(orchestrator)
	}
	return orchestrator, nil
}
