package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/stratwatch/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("StratWatch Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. Backend base URL
		cfg.Backend.BaseURL = prompt(scanner, "Backend base URL", cfg.Backend.BaseURL)

		// 2. Backend API token
		cfg.Backend.APIToken = prompt(scanner, "Backend API token", cfg.Backend.APIToken)

		// 3. Concurrent watch limit
		maxWatchesStr := prompt(scanner, "Max concurrent watches", strconv.Itoa(cfg.MaxWatches))
		if n, err := strconv.Atoi(maxWatchesStr); err == nil && n > 0 {
			cfg.MaxWatches = n
		}

		// 4. Telegram bot token (optional)
		cfg.Notify.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Notify.Telegram.Token)

		// 5. Default notification target (optional)
		cfg.Notify.DefaultTarget = prompt(scanner, "Default notify target, e.g. telegram:<chat-id> (optional)", cfg.Notify.DefaultTarget)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
