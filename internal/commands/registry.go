package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"discbot/internal/discord"
	"discbot/internal/llm"
	"discbot/internal/player"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler owns the slash commands and their collaborators.
type Handler struct {
	Players *player.Manager
	LLM     *llm.Client
	Dice    *Dice

	// LogoURL is the thumbnail on status embeds.
	LogoURL string
	// Timeout bounds the work done for a single interaction.
	Timeout time.Duration

	log zerolog.Logger
}

func NewHandler(players *player.Manager, client *llm.Client) *Handler {
	return &Handler{
		Players: players,
		LLM:     client,
		Dice:    NewDice(nil),
		Timeout: 3 * time.Minute,
		log:     log.With().Str("component", "commands").Logger(),
	}
}

// AllCommands returns every slash command definition.
func AllCommands() []*discordgo.ApplicationCommand {
	all := make([]*discordgo.ApplicationCommand, 0, len(MusicCommands)+len(ModerationCommands)+len(UtilityCommands)+len(LLMCommands))
	all = append(all, MusicCommands...)
	all = append(all, ModerationCommands...)
	all = append(all, UtilityCommands...)
	all = append(all, LLMCommands...)
	return all
}

// Sync replaces the registered commands with AllCommands. An empty guildID
// registers them globally.
func Sync(s *discordgo.Session, appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, AllCommands())
	if err != nil {
		return nil, fmt.Errorf("failed to sync commands: %w", err)
	}
	log.Info().Int("count", len(created)).Str("guild", guildID).Msg("Commands synced")
	return created, nil
}

// Purge removes every registered command in scope.
func Purge(s *discordgo.Session, appID, guildID string) (int, error) {
	cmds, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to list commands: %w", err)
	}
	removed := 0
	for _, cmd := range cmds {
		if err := s.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
			log.Warn().Err(err).Str("command", cmd.Name).Msg("Cannot delete command")
			continue
		}
		removed++
	}
	log.Info().Int("count", removed).Str("guild", guildID).Msg("Commands purged")
	return removed, nil
}

// HandleInteraction is the central dispatcher for slash commands and
// component clicks.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		if i.Type == discordgo.InteractionApplicationCommand {
			respondEphemeral(s, i, "This command only works in servers.")
		}
		return
	}

	if i.Type == discordgo.InteractionMessageComponent {
		id := i.MessageComponentData().CustomID
		switch {
		case strings.HasPrefix(id, discord.PanelPrefix):
			h.handlePanelButton(s, i, id)
		case strings.HasPrefix(id, discord.RepeatPrefix):
			h.handleRepeatPick(s, i, strings.TrimPrefix(id, discord.RepeatPrefix))
		}
		return
	}

	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	user := invoker(i)
	h.log.Info().
		Str("user", user.Username).
		Str("user_id", user.ID).
		Str("guild", i.GuildID).
		Str("command", data.Name).
		Msg("Command exec")

	switch data.Name {
	case "play", "nowplaying", "repeat", "panel", "pause", "resume", "skip", "stop", "previous":
		h.handleMusicCommand(s, i, data)
	case "clear":
		h.handleClear(s, i, data)
	case "roll":
		h.handleRoll(s, i, data)
	case "joke", "bully", "llmstatus":
		h.handleLLMCommand(s, i, data)
	}
}

func (h *Handler) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.Timeout)
}

// --- Helpers ---

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

// deferReply acknowledges the interaction so the real answer can take
// longer than Discord's three second window.
func deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
}

func editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: strPtr(content),
	})
}

// invoker returns the user behind an interaction.
func invoker(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{}
}

// options indexes the top level options of a command by name.
func options(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func strPtr(s string) *string {
	return &s
}
