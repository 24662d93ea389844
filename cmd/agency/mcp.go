package main

import (
	"github.com/spf13/cobra"

	"github.com/metalagman/agency/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the session tools over MCP on stdio",
		Long:  "Run an MCP server on stdin/stdout exposing create_session, send_message, get_session, reset_session and list_sessions. Logs go to stderr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				return mcpserver.Serve(cmd.Context(), mcpserver.New(a.sessions, version))
			})
		},
	}
}
