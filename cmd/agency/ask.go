package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/router"
	"github.com/metalagman/agency/internal/sdlc/state"
	"github.com/metalagman/agency/internal/session"
	"github.com/metalagman/agency/internal/tui"
)

func askCmd() *cobra.Command {
	var (
		sessionID string
		style     string
		width     int
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the team's replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if sessionID == "" {
				info, err := a.sessions.Create(ctx)
				if err != nil {
					return err
				}
				sessionID = info.ID
			}

			out := cmd.OutOrStdout()
			r := tui.NewRenderer(style, width)
			var last router.Target
			var steps int
			var turnErr error
			for step, err := range a.sessions.Turn(ctx, sessionID, strings.Join(args, " ")) {
				if err != nil {
					turnErr = err
					break
				}
				steps++
				last = step.Next
				fmt.Fprint(out, r.Message(state.Message{Role: state.RoleAgent, Author: step.Role, Content: step.Content}))
			}

			outcome := session.Classify(last, turnErr)
			log.Info().Str("session_id", sessionID).Str("outcome", string(outcome)).Int("steps", steps).Msg("turn finished")
			fmt.Fprintf(cmd.ErrOrStderr(), "session %s: %s\n", sessionID, outcome)
			if errors.Is(turnErr, graph.ErrStepCeiling) {
				return fmt.Errorf("loop detected, the team was stopped: %w", turnErr)
			}
			return turnErr
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().StringVar(&style, "style", "dark", "markdown style: dark, light or notty")
	cmd.Flags().IntVar(&width, "width", 100, "wrap width, 0 disables wrapping")
	return cmd
}
