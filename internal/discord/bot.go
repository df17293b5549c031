package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

type Bot struct {
	Session *discordgo.Session
	Config  *Config
}

func New(cfg *Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates
	session.StateEnabled = true

	return &Bot{
		Session: session,
		Config:  cfg,
	}, nil
}

func (b *Bot) Start() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	log.Info().Msg("Gateway connection open")
	return nil
}

func (b *Bot) Stop() error {
	return b.Session.Close()
}

// AppID returns the application ID once the session is open.
func (b *Bot) AppID() string {
	if b.Session.State != nil && b.Session.State.User != nil {
		return b.Session.State.User.ID
	}
	return ""
}
