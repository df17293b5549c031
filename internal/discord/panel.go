package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"discbot/internal/player"

	"github.com/bwmarrin/discordgo"
)

// Panel button custom IDs. Every panel control shares PanelPrefix, which is
// also how panel messages are recognised in channel history.
const (
	PanelPrefix  = "music_panel:"
	PanelPrev    = PanelPrefix + "prev"
	PanelStop    = PanelPrefix + "stop"
	PanelToggle  = PanelPrefix + "toggle"
	PanelNext    = PanelPrefix + "next"
	PanelRepeat  = PanelPrefix + "repeat"
	RepeatPrefix = "music_repeat:"
)

// PanelTransport implements player.PanelTransport on the Discord REST API.
type PanelTransport struct {
	session *discordgo.Session
}

func NewPanelTransport(s *discordgo.Session) *PanelTransport {
	return &PanelTransport{session: s}
}

func (t *PanelTransport) Send(ctx context.Context, channelID string, c player.PanelContent) (string, error) {
	msg, err := t.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{PanelEmbed(c)},
		Components: PanelComponents(c.Controls),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return msg.ID, nil
}

func (t *PanelTransport) Edit(ctx context.Context, channelID, messageID string, c player.PanelContent) error {
	embeds := []*discordgo.MessageEmbed{PanelEmbed(c)}
	components := PanelComponents(c.Controls)
	_, err := t.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (t *PanelTransport) Delete(ctx context.Context, channelID, messageID string) error {
	return mapError(t.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (t *PanelTransport) Recent(ctx context.Context, channelID string, limit int) ([]player.PanelMessage, error) {
	msgs, err := t.session.ChannelMessages(channelID, min(limit, 100), "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	self := t.selfID()
	out := make([]player.PanelMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, player.PanelMessage{
			ID:     m.ID,
			Marked: m.Author != nil && m.Author.ID == self && IsPanelMessage(m),
		})
	}
	return out, nil
}

func (t *PanelTransport) LastMessageID(ctx context.Context, channelID string) (string, error) {
	msgs, err := t.session.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].ID, nil
}

func (t *PanelTransport) selfID() string {
	if t.session.State != nil && t.session.State.User != nil {
		return t.session.State.User.ID
	}
	return ""
}

// mapError turns Discord REST failures into the player's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return errors.Join(player.ErrPanelNotFound, err)
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return errors.Join(player.ErrPanelForbidden, err)
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return errors.Join(player.ErrPanelNotFound, err)
		case http.StatusForbidden:
			return errors.Join(player.ErrPanelForbidden, err)
		}
	}
	return err
}

// IsPanelMessage reports whether m carries panel controls.
func IsPanelMessage(m *discordgo.Message) bool {
	for _, c := range m.Components {
		if hasPanelButton(c) {
			return true
		}
	}
	return false
}

func hasPanelButton(c discordgo.MessageComponent) bool {
	switch v := c.(type) {
	case *discordgo.ActionsRow:
		return rowHasPanelButton(v.Components)
	case discordgo.ActionsRow:
		return rowHasPanelButton(v.Components)
	case *discordgo.Button:
		return strings.HasPrefix(v.CustomID, PanelPrefix)
	case discordgo.Button:
		return strings.HasPrefix(v.CustomID, PanelPrefix)
	}
	return false
}

func rowHasPanelButton(cs []discordgo.MessageComponent) bool {
	for _, c := range cs {
		if hasPanelButton(c) {
			return true
		}
	}
	return false
}

// PanelEmbed converts rendered panel content to an embed.
func PanelEmbed(c player.PanelContent) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       c.Title,
		Description: c.Description,
		Color:       c.Color,
	}
	if !c.Timestamp.IsZero() {
		e.Timestamp = c.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	for _, f := range c.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if c.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.Thumbnail}
	}
	if c.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: c.Footer}
	}
	return e
}

// PanelComponents builds the control row.
func PanelComponents(ctl player.Controls) []discordgo.MessageComponent {
	toggleLabel, toggleEmoji := "Pause", "⏸️"
	if ctl.Paused {
		toggleLabel, toggleEmoji = "Resume", "▶️"
	}
	repeat := ctl.Repeat
	if repeat == "" {
		repeat = player.RepeatOff
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Prev",
					Emoji:    &discordgo.ComponentEmoji{Name: "⏮️"},
					Style:    discordgo.SecondaryButton,
					CustomID: PanelPrev,
					Disabled: !ctl.PrevEnabled,
				},
				discordgo.Button{
					Label:    "Stop",
					Emoji:    &discordgo.ComponentEmoji{Name: "⏹️"},
					Style:    discordgo.DangerButton,
					CustomID: PanelStop,
				},
				discordgo.Button{
					Label:    toggleLabel,
					Emoji:    &discordgo.ComponentEmoji{Name: toggleEmoji},
					Style:    discordgo.PrimaryButton,
					CustomID: PanelToggle,
				},
				discordgo.Button{
					Label:    "Next",
					Emoji:    &discordgo.ComponentEmoji{Name: "⏭️"},
					Style:    discordgo.SecondaryButton,
					CustomID: PanelNext,
				},
				discordgo.Button{
					Label:    "Repeat: " + repeat.Badge(),
					Style:    discordgo.SecondaryButton,
					CustomID: PanelRepeat,
				},
			},
		},
	}
}

// RepeatPicker is the ephemeral off/one/all selector.
func RepeatPicker(current player.RepeatMode) []discordgo.MessageComponent {
	modes := []player.RepeatMode{player.RepeatOff, player.RepeatOne, player.RepeatAll}
	buttons := make([]discordgo.MessageComponent, 0, len(modes))
	for _, m := range modes {
		style := discordgo.SecondaryButton
		if m == current {
			style = discordgo.SuccessButton
		}
		buttons = append(buttons, discordgo.Button{
			Label:    m.Badge(),
			Style:    style,
			CustomID: RepeatPrefix + string(m),
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}
