package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metalagman/agency/internal/db"
	"github.com/metalagman/agency/internal/session"
	"github.com/metalagman/agency/internal/tui"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage stored sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsResetCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	cmd.AddCommand(sessionsPruneCmd())
	cmd.AddCommand(sessionsExportCmd())
	return cmd
}

// withApp loads the config, opens the app and runs fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				items, err := a.sessions.List(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable("ID", "STATUS", "TURNS", "STEPS", "UPDATED", "SUMMARY")
				for _, it := range items {
					t.Row(it.ID, it.Status, strconv.Itoa(it.Turns), strconv.Itoa(it.StepCount),
						it.UpdatedAt.Local().Format(time.DateTime), it.State.Summary())
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), t)
				return err
			})
		},
	}
}

func sessionsShowCmd() *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				info, err := a.sessions.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", tui.TitleStyle.Render("Session "+info.ID+" ("+info.Status+")"))
				if info.State.ProjectPlan != "" {
					fmt.Fprintf(out, "\nProject plan:\n%s\n", info.State.ProjectPlan)
				}
				if info.State.CurrentTask != nil {
					fmt.Fprintf(out, "\nCurrent task (%s): %s\n", info.State.CurrentTask.AssignedRole, info.State.CurrentTask.Description)
				}
				fmt.Fprintln(out)
				r := tui.NewRenderer(style, 100)
				for _, m := range info.State.Messages {
					fmt.Fprint(out, r.Message(m))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&style, "style", "dark", "markdown style: dark, light or notty")
	return cmd
}

func sessionsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Clear a session's conversation and plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if _, err := a.sessions.Reset(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Info().Str("session_id", args[0]).Msg("session reset")
				return nil
			})
		},
	}
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				for _, id := range args {
					if err := a.sessions.Delete(cmd.Context(), id); err != nil {
						return err
					}
					log.Info().Str("session_id", id).Msg("session deleted")
				}
				return nil
			})
		},
	}
}

func sessionsPruneCmd() *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune old sessions from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				policy := db.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
				if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
					policy = db.RetentionPolicy{
						KeepLast: a.cfg.Retention.KeepLast,
						KeepDays: a.cfg.Retention.KeepDays,
					}
				}
				if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
					return fmt.Errorf("set --keep-last or --keep-days (or configure retention in the config file)")
				}

				res, err := a.sessions.Prune(cmd.Context(), policy, dryRun)
				if err != nil {
					return err
				}
				mode := "deleted"
				if dryRun {
					mode = "would delete"
				}
				log.Info().Strs("session_ids", res.DeletedIDs).Msgf("%s %d sessions (kept %d of %d)", mode, res.Deleted, res.Kept, res.Considered)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N sessions")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep sessions newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}

func sessionsExportCmd() *cobra.Command {
	var format string
	var output string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session with its state and steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				info, err := a.sessions.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}
				return writeInfo(w, info, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file")
	return cmd
}

func writeInfo(w io.Writer, info session.Info, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
