package main

import (
	"github.com/spf13/cobra"

	"github.com/metalagman/agency/internal/session"
	"github.com/metalagman/agency/internal/tui"
)

func chatCmd() *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "chat [session-id]",
		Short: "Talk to the team in an interactive terminal UI",
		Long:  "Start an interactive chat. Without a session id a new session is created; with one the stored conversation is resumed.",
		Args:  cobra.MaximumNArgs(1),
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
			var info session.Info
			if len(args) == 1 {
				info, err = a.sessions.Get(ctx, args[0])
			} else {
				info, err = a.sessions.Create(ctx)
			}
			if err != nil {
				return err
			}
			return tui.Run(ctx, a.sessions, info.ID, info.State.Messages, tui.Options{Style: style})
		},
	}
	cmd.Flags().StringVar(&style, "style", "dark", "markdown style: dark, light or notty")
	return cmd
}
