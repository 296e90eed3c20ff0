package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/simulator"
)

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().String("addr", "", "listen address (defaults to simulator.addr from config)")
	simCmd.Flags().Bool("fail", false, "play the failing script instead of the happy path")
	simCmd.Flags().Duration("delay", 200*time.Millisecond, "delay between scripted frames")
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a local workflow stream simulator",
	Long: `Run a WebSocket server that plays a scripted strategy workflow for any
session ID a client connects with. Point the watcher at it with
STRATWATCH_BACKEND_URL or backend.base_url for local development.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Simulator.Addr
		}
		fail, _ := cmd.Flags().GetBool("fail")
		delay, _ := cmd.Flags().GetDuration("delay")

		script := simulator.DefaultScript()
		if fail {
			script = simulator.FailureScript()
		}

		server := simulator.New(simulator.Config{
			ListenAddr: addr,
			Script:     simulator.Spread(script, delay),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("start simulator: %w", err)
		}
		fmt.Fprintf(os.Stdout, "simulator listening on %s\n", server.BaseURL())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Close(ctx)
	},
}
