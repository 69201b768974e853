package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/marketradar/internal/config"
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

		fmt.Println("MarketRadar Setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Server.URL = prompt(scanner, "Agent server URL", cfg.Server.URL)
		cfg.Mission.MaxIterations = promptInt(scanner, "Max iterations per mission (1-500)", cfg.Mission.MaxIterations)
		cfg.MaxConcurrent = promptInt(scanner, "Missions watched at once", cfg.MaxConcurrent)

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		if cfg.Telegram.Token != "" {
			chat := ""
			if cfg.Telegram.ChatID != 0 {
				chat = strconv.FormatInt(cfg.Telegram.ChatID, 10)
			}
			chat = prompt(scanner, "Telegram chat id for notices (optional)", chat)
			if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
				cfg.Telegram.ChatID = id
			}
		}

		cfg.Webhook.Addr = prompt(scanner, "Webhook listen address (empty disables)", cfg.Webhook.Addr)
		if cfg.Webhook.Addr != "" {
			cfg.Webhook.Token = prompt(scanner, "Webhook bearer token (optional)", cfg.Webhook.Token)
		}

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

func promptInt(scanner *bufio.Scanner, label string, defaultVal int) int {
	if n, err := strconv.Atoi(prompt(scanner, label, strconv.Itoa(defaultVal))); err == nil && n > 0 {
		return n
	}
	return defaultVal
}
