package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metalagman/ainvoke"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/agency/internal/config"
	"github.com/metalagman/agency/internal/llm/execio"
	"github.com/metalagman/agency/internal/logging"
)

// execOracle delegates completions to an external agent CLI. Each call gets
// a fresh run directory that is removed afterwards.
type execOracle struct {
	cmd    []string
	useTTY bool
	runner ainvoke.Runner
}

func newExec(cfg config.LLMConfig) (Oracle, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("exec provider requires llm.cmd")
	}
	useTTY := false
	if cfg.UseTTY != nil {
		useTTY = *cfg.UseTTY
	}
	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{
		Cmd:    cfg.Cmd,
		UseTTY: useTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("init exec runner: %w", err)
	}
	return &execOracle{cmd: cfg.Cmd, useTTY: useTTY, runner: runner}, nil
}

func (o *execOracle) Complete(ctx context.Context, req Request) (string, error) {
	runDir, err := os.MkdirTemp("", "agency-exec-*")
	if err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(runDir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", runDir).Msg("remove exec run dir")
		}
	}()

	input := &execio.Input{Role: req.Role, Context: req.Context, History: make([]*execio.Message, 0, len(req.History))}
	for _, m := range req.History {
		input.History = append(input.History, &execio.Message{Role: string(m.Role), Author: m.Author, Content: m.Content})
	}

	var stderr bytes.Buffer
	var stdout io.Writer = io.Discard
	if logging.DebugEnabled() {
		stdout = os.Stderr
	}

	log.Debug().Str("role", req.Role).Str("cmd", strings.Join(o.cmd, " ")).Msg("invoking exec oracle")
	outBytes, _, exitCode, err := o.runner.Run(ctx, ainvoke.Invocation{
		RunDir:       runDir,
		SystemPrompt: req.SystemPrompt,
		Input:        input,
		InputSchema:  execio.InputSchema,
		OutputSchema: execio.OutputSchema,
	}, ainvoke.WithStdout(stdout), ainvoke.WithStderr(&stderr))
	if err != nil {
		return "", fmt.Errorf("exec oracle: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("exec oracle exited with code %d: %s", exitCode, strings.TrimSpace(stderr.String()))
	}

	var out execio.Output
	if err := json.Unmarshal(outBytes, &out); err != nil {
		return "", fmt.Errorf("parse exec output: %w", err)
	}
	if strings.TrimSpace(out.Reply) == "" {
		return "", fmt.Errorf("exec output has empty reply")
	}
	return out.Reply, nil
}
