package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/state"
	"github.com/user/stratwatch/internal/types"
)

func init() {
	rootCmd.AddCommand(watchlistCmd)
	watchlistCmd.AddCommand(watchlistAddCmd, watchlistListCmd, watchlistRemoveCmd, watchlistEnableCmd, watchlistDisableCmd)

	watchlistAddCmd.Flags().String("name", "", "entry name (required)")
	watchlistAddCmd.Flags().String("session", "", "session ID to watch (required)")
	watchlistAddCmd.Flags().String("notify", "", "notification target, e.g. telegram:<chat-id>")
	_ = watchlistAddCmd.MarkFlagRequired("name")
	_ = watchlistAddCmd.MarkFlagRequired("session")
}

func watchlistStore() *state.WatchlistStore {
	cfg := loadConfig()
	return state.NewWatchlistStore(filepath.Join(cfg.DataDir, "watchlist.json"))
}

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Manage sessions the daemon watches",
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a session to the watchlist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		session, _ := cmd.Flags().GetString("session")
		notify, _ := cmd.Flags().GetString("notify")

		store := watchlistStore()
		entry := &types.WatchEntry{
			Name:         name,
			SessionID:    types.SessionID(session),
			NotifyTarget: notify,
			Enabled:      true,
		}
		if err := store.Add(entry); err != nil {
			return fmt.Errorf("add watchlist entry: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Watchlist entry %q added.\n", name)
		return nil
	},
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all watchlist entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := watchlistStore()
		entries, err := store.List()
		if err != nil {
			return fmt.Errorf("list watchlist: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Watchlist is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSESSION\tENABLED\tNOTIFY")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n",
				e.Name,
				e.SessionID,
				e.Enabled,
				e.NotifyTarget,
			)
		}
		return w.Flush()
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a watchlist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := watchlistStore()
		if err := store.Remove(args[0]); err != nil {
			return fmt.Errorf("remove watchlist entry: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Watchlist entry %q removed.\n", args[0])
		return nil
	},
}

var watchlistEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a watchlist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := watchlistStore()
		if err := store.SetEnabled(args[0], true); err != nil {
			return fmt.Errorf("enable watchlist entry: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Watchlist entry %q enabled.\n", args[0])
		return nil
	},
}

var watchlistDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a watchlist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := watchlistStore()
		if err := store.SetEnabled(args[0], false); err != nil {
			return fmt.Errorf("disable watchlist entry: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Watchlist entry %q disabled.\n", args[0])
		return nil
	},
}
