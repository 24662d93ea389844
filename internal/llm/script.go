package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Script is a deterministic reply file. Keys are node ids or display names;
// each role answers with its replies in order and repeats the last one once
// exhausted.
//
//	project_manager:
//	  - "Welcome. [ACTION: HANDOFF_TO_ARCHITECT]"
//	architect:
//	  - "Plan ready. [ACTION: ARCHITECT_DESIGN_COMPLETE]"
type Script map[string][]string

// LoadScript reads a script file.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("script %s has no replies", path)
	}
	return s, nil
}

// ScriptOracle replays a Script.
type ScriptOracle struct {
	mu     sync.Mutex
	script Script
	pos    map[string]int
}

// NewScriptOracle returns an oracle replaying s.
func NewScriptOracle(s Script) *ScriptOracle {
	return &ScriptOracle{script: s, pos: make(map[string]int)}
}

// Complete returns the next scripted reply for req.Role.
func (o *ScriptOracle) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	key, replies := o.lookup(req.Role)
	if len(replies) == 0 {
		return "", fmt.Errorf("script has no replies for %q", req.Role)
	}
	i := o.pos[key]
	if i >= len(replies) {
		i = len(replies) - 1
	} else {
		o.pos[key] = i + 1
	}
	return replies[i], nil
}

func (o *ScriptOracle) lookup(role string) (string, []string) {
	if replies, ok := o.script[role]; ok {
		return role, replies
	}
	if id, ok := roleKey(role); ok {
		if replies, ok := o.script[id]; ok {
			return id, replies
		}
	}
	return role, nil
}
