package main

import (
	"fmt"
	"os"

	"discbot/internal/discord"
	"discbot/internal/logging"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time
var Version = "dev"

var cfg *discord.Config

var rootCmd = &cobra.Command{
	Use:   "discbot",
	Short: "Discord music bot with a live control panel",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initConfig()
	},
	RunE:         runBot,
	SilenceUsage: true,
}

func initConfig() error {
	var err error
	cfg, err = discord.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("discbot %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, commandsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
