// Package events feeds gateway events into the guild players.
package events

import (
	"context"
	"time"

	"discbot/internal/player"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const eventTimeout = 15 * time.Second

// GuildStore forgets the settings of guilds the bot leaves.
type GuildStore interface {
	ForgetGuild(ctx context.Context, guildID string) error
}

type Handlers struct {
	Players *player.Manager
	Store   GuildStore

	log zerolog.Logger
}

func New(players *player.Manager, store GuildStore) *Handlers {
	return &Handlers{
		Players: players,
		Store:   store,
		log:     log.With().Str("component", "events").Logger(),
	}
}

// Register adds every handler to the session.
func (h *Handlers) Register(s *discordgo.Session) {
	s.AddHandler(h.OnReady)
	s.AddHandler(h.OnMessageCreate)
	s.AddHandler(h.OnVoiceStateUpdate)
	s.AddHandler(h.OnGuildDelete)
}

func (h *Handlers) OnReady(s *discordgo.Session, r *discordgo.Ready) {
	h.log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Logged in")
}

// OnMessageCreate keeps the panel fresh when people talk in its channel.
func (h *Handlers) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !isChatActivity(m.Message) {
		return
	}
	p := h.Players.Get(m.GuildID)
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	p.OnChannelActivity(ctx, m.ChannelID)
}

// OnVoiceStateUpdate lets the player re-check the alone policy whenever
// someone joins, leaves or moves in its guild. The bot's own disconnect
// wakes the player so it tears down.
func (h *Handlers) OnVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || !voiceChanged(v) {
		return
	}
	if selfLeft(s, v) {
		h.log.Warn().Str("guild", v.GuildID).Msg("Bot was disconnected from voice")
	}
	if p := h.Players.Get(v.GuildID); p != nil {
		p.OnVoiceActivity()
	}
}

// OnGuildDelete stops playback and drops saved settings when the bot is
// removed from a guild. Outages (Unavailable) are ignored.
func (h *Handlers) OnGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	if p := h.Players.Get(g.ID); p != nil {
		p.Stop()
	}
	if h.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := h.Store.ForgetGuild(ctx, g.ID); err != nil {
		h.log.Warn().Err(err).Str("guild", g.ID).Msg("Failed to forget guild settings")
		return
	}
	h.log.Info().Str("guild", g.ID).Msg("Left guild, settings removed")
}

// isChatActivity reports whether m is a human message in a guild channel.
// The bot's own panel posts must not trigger bumps.
func isChatActivity(m *discordgo.Message) bool {
	if m == nil || m.GuildID == "" || m.Author == nil {
		return false
	}
	return !m.Author.Bot
}

// voiceChanged filters out mute/deafen toggles, which do not change who is
// in a channel.
func voiceChanged(v *discordgo.VoiceStateUpdate) bool {
	if v.BeforeUpdate == nil {
		return true
	}
	return v.BeforeUpdate.ChannelID != v.ChannelID
}

// selfLeft reports whether v removes the bot itself from voice.
func selfLeft(s *discordgo.Session, v *discordgo.VoiceStateUpdate) bool {
	if s == nil || s.State == nil || s.State.User == nil {
		return false
	}
	return v.UserID == s.State.User.ID && v.ChannelID == ""
}
