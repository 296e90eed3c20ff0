package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/render"
	"github.com/user/stratwatch/internal/state"
	"github.com/user/stratwatch/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionTailCmd, sessionClearCmd)

	sessionTailCmd.Flags().Int("limit", 20, "number of events to show")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect recorded sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessions := state.NewSessionStore(cfg.DataDir)
		events := state.NewEventStore(cfg.DataDir)

		ctx := context.Background()
		list, err := sessions.List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tEVENTS\tCREATED")
		for _, s := range list {
			count, err := events.Count(ctx, s.SessionID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				s.SessionID,
				s.Status,
				count,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionTailCmd = &cobra.Command{
	Use:   "tail <id>",
	Short: "Show the last events of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		events := state.NewEventStore(cfg.DataDir)
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := events.Tail(context.Background(), types.SessionID(args[0]), limit)
		if err != nil {
			return fmt.Errorf("tail events: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tKIND\tAGENT\tMESSAGE")
		for _, e := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				e.Seq,
				e.At.Format("15:04:05"),
				e.Kind,
				e.Agent,
				render.Truncate(render.Message(e.Message), 80),
			)
		}
		return w.Flush()
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Clear a session or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessionsDir := filepath.Join(cfg.DataDir, "sessions")

		if args[0] == "all" {
			if err := os.RemoveAll(sessionsDir); err != nil {
				return fmt.Errorf("remove sessions directory: %w", err)
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		sessions := state.NewSessionStore(cfg.DataDir)
		if err := sessions.Delete(context.Background(), types.SessionID(args[0])); err != nil {
			if strings.Contains(err.Error(), "not found") {
				return fmt.Errorf("session not found: %s", args[0])
			}
			return err
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}
