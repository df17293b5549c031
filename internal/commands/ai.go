package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"discbot/internal/llm"

	"github.com/bwmarrin/discordgo"
)

const msgLLMOffline = "LLM service is offline. Set LLM_BASE_URL/LLM_MODEL env vars and restart the bot."

// LLMCommands defines the model-backed slash commands.
var LLMCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "joke",
		Description: "Tell a joke about red tape and bureaucracy",
	},
	{
		Name:        "bully",
		Description: "Drop a playful roast on someone (or yourself)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "target",
				Description: "Who gets roasted; defaults to you",
			},
		},
	},
	{
		Name:        "llmstatus",
		Description: "Show the LLM status dashboard",
	},
}

func (h *Handler) handleLLMCommand(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	switch data.Name {
	case "joke":
		h.handleJoke(s, i)
	case "bully":
		h.handleBully(s, i, data)
	case "llmstatus":
		h.handleLLMStatus(s, i)
	}
}

func (h *Handler) handleJoke(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !h.LLM.Configured() {
		respondEphemeral(s, i, msgLLMOffline)
		return
	}
	deferReply(s, i, false)

	ctx, cancel := h.context()
	defer cancel()

	out, err := h.LLM.Joke(ctx)
	if err != nil {
		h.log.Warn().Err(err).Str("guild", i.GuildID).Msg("Joke failed")
		editReply(s, i, msgLLMOffline)
		return
	}
	editReply(s, i, out)
}

func (h *Handler) handleBully(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	target := invoker(i)
	if opt, ok := options(data.Options)["target"]; ok {
		if u := opt.UserValue(s); u != nil {
			target = u
		}
	}
	if !h.LLM.Configured() {
		respondEphemeral(s, i, msgLLMOffline)
		return
	}
	deferReply(s, i, false)

	ctx, cancel := h.context()
	defer cancel()

	member, err := s.State.Member(i.GuildID, target.ID)
	if err != nil {
		member, err = s.GuildMember(i.GuildID, target.ID, discordgo.WithContext(ctx))
		if err != nil {
			member = nil
		}
	}
	dossier := dossierFor(target, member, guildRoles(s, i.GuildID))

	out, err := h.LLM.Roast(ctx, dossier)
	if err != nil {
		h.log.Warn().Err(err).Str("guild", i.GuildID).Msg("Roast failed")
		editReply(s, i, msgLLMOffline)
		return
	}
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:         strPtr(out),
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: []string{target.ID}},
	})
}

func (h *Handler) handleLLMStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferReply(s, i, true)

	ctx, cancel := h.context()
	defer cancel()

	d := h.LLM.Diagnose(ctx)
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{statusEmbed(d, h.LogoURL, time.Now())},
	})
}

func guildRoles(s *discordgo.Session, guildID string) []*discordgo.Role {
	if g, err := s.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
		return g.Roles
	}
	roles, err := s.GuildRoles(guildID)
	if err != nil {
		return nil
	}
	return roles
}

// dossierFor collects what a roast may mention about user. member may be
// nil when the user is not in the guild.
func dossierFor(user *discordgo.User, member *discordgo.Member, roles []*discordgo.Role) llm.Dossier {
	d := llm.Dossier{
		DisplayName: displayName(user),
		Mention:     user.Mention(),
	}
	if member == nil {
		return d
	}
	d.Nick = member.Nick
	d.JoinedAt = member.JoinedAt

	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	var held []*discordgo.Role
	for _, id := range member.Roles {
		if r, ok := byID[id]; ok && r.Name != "@everyone" {
			held = append(held, r)
		}
	}
	sort.SliceStable(held, func(a, b int) bool { return held[a].Position < held[b].Position })
	for _, r := range held {
		d.Roles = append(d.Roles, r.Name)
	}
	if len(held) > 0 {
		d.TopRole = held[len(held)-1].Name
	}
	return d
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// statusEmbed renders /llmstatus.
func statusEmbed(d llm.Diagnostics, logoURL string, now time.Time) *discordgo.MessageEmbed {
	color, status := 0xED4245, "OFFLINE ❌"
	if d.Reachable {
		color, status = 0x57F287, "ONLINE ✅"
	}
	desc := strings.Join(d.Log, "\n")
	if desc == "" {
		desc = "No telemetry collected."
	}

	e := &discordgo.MessageEmbed{
		Title:       "DiscBot LLM Console",
		Description: desc,
		Color:       color,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "LLM Status", Value: status, Inline: true},
			{Name: "Active Queue", Value: fmt.Sprintf("%d in-flight", d.Stats.Inflight), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "DiscBot • LLM telemetry"},
	}
	if d.Stats.LastLatency > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name: "Last Response", Value: fmt.Sprintf("%.2fs", d.Stats.LastLatency.Seconds()), Inline: true,
		})
	}
	if !d.Stats.LastSuccess.IsZero() {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name: "Last Success", Value: fmt.Sprintf("<t:%d:R>", d.Stats.LastSuccess.Unix()), Inline: true,
		})
	}
	if d.Stats.LastError != "" {
		msg := d.Stats.LastError
		if r := []rune(msg); len(r) > 256 {
			msg = string(r[:256])
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Last Error", Value: msg})
	}
	models := "No models detected"
	if len(d.Models) > 0 {
		models = strings.Join(d.Models, ", ")
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Models", Value: models})
	if logoURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: logoURL}
	}
	return e
}
