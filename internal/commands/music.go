package commands

import (
	"errors"
	"fmt"

	"discbot/internal/discord"
	"discbot/internal/player"

	"github.com/bwmarrin/discordgo"
)

// MusicCommands defines all music-related slash commands.
var MusicCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Play from YouTube or Spotify link/search",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Link, playlist or search text",
				Required:    true,
			},
		},
	},
	{
		Name:        "nowplaying",
		Description: "Show the current/last track panel",
	},
	{
		Name:        "repeat",
		Description: "Configure repeat mode with quick-select buttons",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "Optional quick set: off, one, or all",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "off", Value: "off"},
					{Name: "one", Value: "one"},
					{Name: "all", Value: "all"},
				},
			},
		},
	},
	{
		Name:        "panel",
		Description: "Music panel controls",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "sethere",
				Description: "Attach the music panel to this channel",
			},
		},
	},
	{
		Name:        "pause",
		Description: "Pause the current song",
	},
	{
		Name:        "resume",
		Description: "Resume playback",
	},
	{
		Name:        "skip",
		Description: "Skip the current song",
	},
	{
		Name:        "stop",
		Description: "Stop playback and clear the queue",
	},
	{
		Name:        "previous",
		Description: "Go back to the previous song",
	},
}

const (
	msgJoinVoice      = "Join a voice channel first."
	msgNothingPlaying = "❌ Nothing is playing right now."
	msgValidModes     = "Valid modes: off, one, all"
)

func (h *Handler) handleMusicCommand(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	switch data.Name {
	case "play":
		h.handlePlay(s, i, data)
	case "nowplaying":
		h.handleNowPlaying(s, i)
	case "repeat":
		h.handleRepeat(s, i, data)
	case "panel":
		h.handlePanel(s, i, data)
	case "pause":
		h.handlePause(s, i)
	case "resume":
		h.handleResume(s, i)
	case "skip":
		h.handleSkip(s, i)
	case "stop":
		h.handleStop(s, i)
	case "previous":
		h.handlePrevious(s, i)
	}
}

// findUserVoiceChannel finds the voice channel the command invoker is in.
func findUserVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// --- Command Handlers ---

func (h *Handler) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	query := options(data.Options)["query"].StringValue()
	user := invoker(i)

	channelID := findUserVoiceChannel(s, i.GuildID, user.ID)
	if channelID == "" {
		respondEphemeral(s, i, msgJoinVoice)
		return
	}

	// Resolution and joining can take a while.
	deferReply(s, i, true)

	ctx, cancel := h.context()
	defer cancel()

	p := h.Players.GetOrCreate(i.GuildID)
	if err := p.Connect(ctx, channelID); err != nil {
		h.log.Warn().Err(err).Str("guild", i.GuildID).Msg("Voice connect failed")
		editReply(s, i, fmt.Sprintf("Couldn't join voice: `%v`", err))
		return
	}
	p.SetPanelChannel(ctx, i.ChannelID, true)

	tracks, err := p.Enqueue(ctx, query, user.ID)
	editReply(s, i, playReply(len(tracks), err))
}

// playReply is the ephemeral answer to /play.
func playReply(n int, err error) string {
	switch {
	case errors.Is(err, player.ErrNoTracks):
		return "No playable formats were found for that input."
	case err != nil:
		return fmt.Sprintf("Couldn't enqueue: `%v`", err)
	}
	return fmt.Sprintf("Enqueued **%d** track(s).", n)
}

func (h *Handler) handleNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.Players.GetOrCreate(i.GuildID)
	respondEmbed(s, i, discord.PanelEmbed(p.Render()))
}

func (h *Handler) handleRepeat(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	p := h.Players.GetOrCreate(i.GuildID)

	opt, ok := options(data.Options)["mode"]
	if !ok {
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    "Select a repeat mode below.",
				Components: discord.RepeatPicker(p.Repeat()),
				Flags:      discordgo.MessageFlagsEphemeral,
			},
		})
		return
	}

	mode, err := player.ParseRepeatMode(opt.StringValue())
	if err != nil {
		respondEphemeral(s, i, msgValidModes)
		return
	}

	ctx, cancel := h.context()
	defer cancel()
	p.SetRepeat(ctx, mode)
	respondEphemeral(s, i, fmt.Sprintf("Repeat mode set to **%s**", mode))
	p.RefreshPanel(ctx)
}

func (h *Handler) handlePanel(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 || data.Options[0].Name != "sethere" {
		return
	}
	ch, err := s.State.Channel(i.ChannelID)
	if err == nil && ch.Type != discordgo.ChannelTypeGuildText && !ch.IsThread() {
		respondEphemeral(s, i, "Run this in a text channel.")
		return
	}

	ctx, cancel := h.context()
	defer cancel()

	p := h.Players.GetOrCreate(i.GuildID)
	p.SetPanelChannel(ctx, i.ChannelID, true)
	respondEphemeral(s, i, "✅ Panel attached here.")
	p.RefreshPanel(ctx)
}

func (h *Handler) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.Players.Get(i.GuildID)
	if p == nil || !p.Pause() {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}
	respondEphemeral(s, i, "⏸️ Paused.")
	h.refresh(p)
}

func (h *Handler) handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.Players.Get(i.GuildID)
	if p == nil || !p.Resume() {
		respondEphemeral(s, i, "❌ Nothing is paused right now.")
		return
	}
	respondEphemeral(s, i, "▶️ Resumed.")
	h.refresh(p)
}

func (h *Handler) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.Players.Get(i.GuildID)
	if p == nil {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}
	skipped, _ := p.Current()
	if err := p.Skip(); err != nil {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}
	respondEphemeral(s, i, fmt.Sprintf("⏭️ Skipped **%s**", skipped.Title))
}

func (h *Handler) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.Players.Get(i.GuildID)
	if p == nil {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}
	p.Stop()
	respondEphemeral(s, i, "⏹️ Stopped and cleared the queue.")
}

func (h *Handler) handlePrevious(s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.Players.Get(i.GuildID)
	if p == nil || p.Previous() != nil {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}
	respondEphemeral(s, i, "⏮️ Playing previous song...")
}

// --- Components ---

// handlePanelButton runs a panel control and acknowledges the click without
// a new message; the panel itself reflects the change.
func (h *Handler) handlePanelButton(s *discordgo.Session, i *discordgo.InteractionCreate, id string) {
	p := h.Players.Get(i.GuildID)
	if p == nil {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}

	ctx, cancel := h.context()
	defer cancel()

	var err error
	switch id {
	case discord.PanelPrev:
		err = p.Previous()
	case discord.PanelStop:
		p.Stop()
	case discord.PanelToggle:
		if !p.TogglePause() {
			err = player.ErrNothingPlaying
		}
	case discord.PanelNext:
		err = p.Skip()
	case discord.PanelRepeat:
		p.CycleRepeat(ctx)
	default:
		return
	}
	if err != nil {
		respondEphemeral(s, i, msgNothingPlaying)
		return
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	p.RefreshPanel(ctx)
}

func (h *Handler) handleRepeatPick(s *discordgo.Session, i *discordgo.InteractionCreate, value string) {
	mode, err := player.ParseRepeatMode(value)
	if err != nil {
		respondEphemeral(s, i, msgValidModes)
		return
	}

	ctx, cancel := h.context()
	defer cancel()

	p := h.Players.GetOrCreate(i.GuildID)
	p.SetRepeat(ctx, mode)

	components := discord.RepeatPicker(mode)
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("Repeat mode set to **%s**", mode),
			Components: components,
		},
	})
	p.RefreshPanel(ctx)
}

// refresh re-renders the panel after a state change made by a command.
func (h *Handler) refresh(p *player.Player) {
	ctx, cancel := h.context()
	defer cancel()
	p.RefreshPanel(ctx)
}
