package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/progress"
	"github.com/user/stratwatch/internal/render"
	"github.com/user/stratwatch/internal/stream"
	"github.com/user/stratwatch/pkg/workflow"
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("events", false, "print each event as it arrives")
}

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Follow a session's progress live in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		showEvents, _ := cmd.Flags().GetBool("events")

		sessionID := args[0]
		done := make(chan struct{})
		var finish sync.Once

		var tracker *progress.Tracker
		opts := []progress.Option{
			progress.WithReadyNotifier(func(id string) {
				fmt.Fprintf(os.Stdout, "session %s is live\n", id)
			}),
			progress.WithOnUpdate(func(snap progress.Snapshot) {
				printPhases(snap)
				if snap.Fault != nil {
					fmt.Fprintf(os.Stderr, "stream fault: %s\n", snap.Fault.Message())
					finish.Do(func() { close(done) })
					return
				}
				if snap.Complete {
					finish.Do(func() {
						if snap.Failed {
							fmt.Fprintln(os.Stdout, "session failed")
						} else {
							fmt.Fprintln(os.Stdout, "session complete")
						}
						close(done)
					})
				}
			}),
		}
		if showEvents {
			opts = append(opts, progress.WithRecorder(func(_ string, e workflow.Event) {
				line := e.Kind
				if e.Agent != "" {
					line += " " + e.Agent
				}
				if e.Message != "" {
					line += ": " + render.Message(e.Message)
				}
				fmt.Fprintln(os.Stdout, line)
			}))
		}

		tracker = progress.New(stream.Config{
			BaseURL:     cfg.Backend.BaseURL,
			APIToken:    cfg.Backend.APIToken,
			DialTimeout: time.Duration(cfg.Backend.DialTimeout) * time.Second,
		}, opts...)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := tracker.Bind(ctx, sessionID); err != nil {
			return fmt.Errorf("connect to session: %w", err)
		}
		defer tracker.Close()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-done:
		case <-sigChan:
			fmt.Fprintln(os.Stdout, "detached")
		}
		return nil
	},
}

var statusGlyphs = map[workflow.Status]string{
	workflow.StatusPending: "·",
	workflow.StatusActive:  "▸",
	workflow.StatusDone:    "✔",
}

func printPhases(snap progress.Snapshot) {
	line := ""
	for i, p := range snap.Phases {
		if i > 0 {
			line += "  "
		}
		line += statusGlyphs[p.Status] + " " + p.Label
	}
	fmt.Fprintf(os.Stdout, "\r%s (%d events)\n", line, snap.EventCount)
}
