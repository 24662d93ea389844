package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/metalagman/agency/internal/sdlc/directive"
	"github.com/metalagman/agency/internal/sdlc/roles"
	"github.com/metalagman/agency/internal/sdlc/router"
)

func directivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directives",
		Short: "Print the action vocabulary and the graph edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			routes := newTable("DIRECTIVE", "NEXT")
			for _, d := range directive.All() {
				routes.Row(d.String(), router.Route(d).String())
			}
			routes.Row("(anything else)", router.Route(directive.NoActionSpecified).String())

			edges := newTable("NODE", "EDGES")
			for _, r := range roles.All() {
				targets := make([]string, 0, len(router.Edges[r.ID()]))
				for _, t := range router.Edges[r.ID()] {
					targets = append(targets, t.String())
				}
				edges.Row(string(r.ID()), strings.Join(targets, ", "))
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", routes, edges)
			return err
		},
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}
