package main

import (
	"fmt"

	"discbot/internal/commands"
	"discbot/internal/discord"

	"github.com/spf13/cobra"
)

var guildFlag string

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Manage registered slash commands",
}

var commandsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register every slash command, replacing stale ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, app, err := restBot()
		if err != nil {
			return err
		}
		created, err := commands.Sync(bot.Session, app, scope())
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d commands\n", len(created))
		return nil
	},
}

var commandsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every registered slash command",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, app, err := restBot()
		if err != nil {
			return err
		}
		n, err := commands.Purge(bot.Session, app, scope())
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d commands\n", n)
		return nil
	},
}

func init() {
	commandsCmd.PersistentFlags().StringVarP(&guildFlag, "guild", "g", "", "guild ID (default: GUILD_ID, empty for global)")
	commandsCmd.AddCommand(commandsSyncCmd, commandsPurgeCmd)
}

// restBot builds a session for REST calls only; the gateway stays closed.
func restBot() (*discord.Bot, string, error) {
	bot, err := discord.New(cfg)
	if err != nil {
		return nil, "", err
	}
	app, err := appID(bot.Session)
	if err != nil {
		return nil, "", err
	}
	return bot, app, nil
}

func scope() string {
	if guildFlag != "" {
		return guildFlag
	}
	return cfg.GuildID
}
