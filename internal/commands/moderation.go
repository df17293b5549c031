package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	clearDefault = 10
	clearMax     = 200

	// Discord refuses bulk deletes of messages older than two weeks.
	bulkDeleteMaxAge = 14 * 24 * time.Hour
)

var (
	minClear             = 1.0
	manageMessages int64 = discordgo.PermissionManageMessages
)

// ModerationCommands defines all moderation-related slash commands.
var ModerationCommands = []*discordgo.ApplicationCommand{
	{
		Name:                     "clear",
		Description:              "Clear last N messages (default 10)",
		DefaultMemberPermissions: &manageMessages,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "amount",
				Description: "Number of messages to delete (1-200)",
				MinValue:    &minClear,
				MaxValue:    clearMax,
			},
		},
	},
}

// clearAmount clamps the requested amount to 1..200, defaulting to 10.
func clearAmount(opt *discordgo.ApplicationCommandInteractionDataOption) int {
	if opt == nil {
		return clearDefault
	}
	return int(max(1, min(clearMax, opt.IntValue())))
}

func (h *Handler) handleClear(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	amount := clearAmount(options(data.Options)["amount"])
	deferReply(s, i, true)

	ctx, cancel := h.context()
	defer cancel()

	var ids []string
	before := ""
	for len(ids) < amount {
		messages, err := s.ChannelMessages(i.ChannelID, min(100, amount-len(ids)), before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			editReply(s, i, fmt.Sprintf("Failed to clear messages: %v", err))
			return
		}
		if len(messages) == 0 {
			break
		}
		for _, msg := range messages {
			ids = append(ids, msg.ID)
		}
		before = messages[len(messages)-1].ID
	}

	recent, old := splitByAge(ids, time.Now())
	deleted := 0
	for _, batch := range chunk(recent, 100) {
		if err := s.ChannelMessagesBulkDelete(i.ChannelID, batch, discordgo.WithContext(ctx)); err != nil {
			editReply(s, i, fmt.Sprintf("Failed to clear messages: %v", err))
			return
		}
		deleted += len(batch)
	}
	for _, id := range old {
		if err := s.ChannelMessageDelete(i.ChannelID, id, discordgo.WithContext(ctx)); err != nil {
			h.log.Debug().Err(err).Str("message", id).Msg("Cannot delete old message")
			continue
		}
		deleted++
	}

	h.log.Info().Str("guild", i.GuildID).Str("channel", i.ChannelID).Int("deleted", deleted).Msg("Cleared messages")
	editReply(s, i, fmt.Sprintf("Cleared %d messages.", deleted))
}

// splitByAge separates message IDs that can still be bulk deleted from
// those that must be deleted one at a time.
func splitByAge(ids []string, now time.Time) (recent, old []string) {
	for _, id := range ids {
		ts, err := discordgo.SnowflakeTimestamp(id)
		if err != nil || now.Sub(ts) >= bulkDeleteMaxAge-time.Minute {
			old = append(old, id)
			continue
		}
		recent = append(recent, id)
	}
	return recent, old
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
