package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/httpapi"
	"github.com/user/stratwatch/internal/notify"
	"github.com/user/stratwatch/internal/scheduler"
	"github.com/user/stratwatch/internal/state"
	"github.com/user/stratwatch/internal/stream"
	"github.com/user/stratwatch/internal/usage"
	"github.com/user/stratwatch/internal/watch"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stratwatch daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "stratwatch.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	sessions := state.NewSessionStore(cfg.DataDir)
	events := state.NewEventStore(cfg.DataDir)
	strategies := state.NewStrategyStore(cfg.DataDir)
	watchlist := state.NewWatchlistStore(filepath.Join(cfg.DataDir, "watchlist.json"))

	// Notification registry
	registry := notify.NewRegistry()
	registry.Register("log:", notify.LogHandler)
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		registry.Register("telegram:", tg.Handler())
		slog.Info("telegram notifier enabled")
	} else {
		slog.Warn("telegram notifier disabled (no token)")
	}

	// Watch manager
	manager := watch.New(
		stream.Config{
			BaseURL:     cfg.Backend.BaseURL,
			APIToken:    cfg.Backend.APIToken,
			DialTimeout: time.Duration(cfg.Backend.DialTimeout) * time.Second,
		},
		sessions, events, strategies,
		registry, cfg.Notify.DefaultTarget, int64(cfg.MaxWatches),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	defer manager.Stop()

	slog.Info("stratwatch started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"backend", cfg.Backend.BaseURL,
		"max_watches", cfg.MaxWatches,
		"pid_file", pidPath,
	)

	// Resume enabled watchlist entries
	entries, err := watchlist.List()
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if err := manager.Watch(ctx, entry.SessionID, entry.NotifyTarget); err != nil {
			slog.Warn("resume watch failed", "name", entry.Name, "session", entry.SessionID, "error", err)
		}
	}

	// Retention scheduler
	sched := scheduler.New(
		cfg.Retention.Schedule,
		time.Duration(cfg.Retention.MaxAgeDays)*24*time.Hour,
		sessions.PruneOlderThan,
	)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Usage estimator; non-fatal since it may need to fetch encodings
	var estimator *usage.Estimator
	if est, err := usage.New(cfg.Usage.Model); err != nil {
		slog.Warn("usage estimation disabled", "error", err)
	} else {
		estimator = est
	}

	// Local API server
	apiSrv := httpapi.NewServer(manager, sessions, events, strategies, estimator)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: apiSrv,
	}
	go func() {
		slog.Info("api server started", "listen", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
