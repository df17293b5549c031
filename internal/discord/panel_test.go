package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"discbot/internal/player"

	"github.com/bwmarrin/discordgo"
)

func restError(status, code int) error {
	e := &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
	if code != 0 {
		e.Message = &discordgo.APIErrorMessage{Code: code}
	}
	return e
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"unknown message", restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage), player.ErrPanelNotFound},
		{"bare 404", restError(http.StatusNotFound, 0), player.ErrPanelNotFound},
		{"missing permissions", restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), player.ErrPanelForbidden},
		{"missing access", restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), player.ErrPanelForbidden},
	}
	for _, tt := range tests {
		if got := mapError(tt.in); !errors.Is(got, tt.want) {
			t.Errorf("%s: mapError() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if mapError(nil) != nil {
		t.Error("mapError(nil) != nil")
	}
	other := restError(http.StatusInternalServerError, 0)
	if got := mapError(other); errors.Is(got, player.ErrPanelNotFound) || errors.Is(got, player.ErrPanelForbidden) {
		t.Errorf("mapError(500) = %v, want passthrough", got)
	}
}

func buttons(t *testing.T, cs []discordgo.MessageComponent) []discordgo.Button {
	t.Helper()
	row, ok := cs[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("component 0 is %T", cs[0])
	}
	var out []discordgo.Button
	for _, c := range row.Components {
		out = append(out, c.(discordgo.Button))
	}
	return out
}

func TestPanelComponents(t *testing.T) {
	bs := buttons(t, PanelComponents(player.Controls{PrevEnabled: false, Paused: true, Repeat: player.RepeatOne}))
	if len(bs) != 5 {
		t.Fatalf("buttons = %d, want 5", len(bs))
	}
	if bs[0].CustomID != PanelPrev || !bs[0].Disabled {
		t.Errorf("prev button = %+v, want disabled", bs[0])
	}
	if bs[2].Label != "Resume" {
		t.Errorf("toggle label = %q, want Resume while paused", bs[2].Label)
	}
	if bs[4].Label != "Repeat: 🔂 Single" {
		t.Errorf("repeat label = %q", bs[4].Label)
	}

	bs = buttons(t, PanelComponents(player.Controls{PrevEnabled: true}))
	if bs[0].Disabled || bs[2].Label != "Pause" {
		t.Errorf("prev disabled=%v toggle=%q", bs[0].Disabled, bs[2].Label)
	}
}

func TestIsPanelMessage(t *testing.T) {
	panel := &discordgo.Message{Components: []discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.Button{CustomID: PanelStop},
		}},
	}}
	if !IsPanelMessage(panel) {
		t.Error("IsPanelMessage(panel) = false")
	}

	picker := &discordgo.Message{Components: RepeatPicker(player.RepeatAll)}
	if IsPanelMessage(picker) {
		t.Error("repeat picker detected as a panel")
	}
	if IsPanelMessage(&discordgo.Message{Content: "hi"}) {
		t.Error("plain message detected as a panel")
	}
}

func TestRepeatPickerHighlightsCurrent(t *testing.T) {
	bs := buttons(t, RepeatPicker(player.RepeatAll))
	for _, b := range bs {
		want := discordgo.SecondaryButton
		if b.CustomID == RepeatPrefix+"all" {
			want = discordgo.SuccessButton
		}
		if b.Style != want {
			t.Errorf("%s style = %v, want %v", b.CustomID, b.Style, want)
		}
	}
}

func TestPanelEmbed(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := PanelEmbed(player.PanelContent{
		Title:     "DiscBot Music Console",
		Color:     0x57F287,
		Timestamp: ts,
		Fields:    []player.Field{{Name: "Queue Depth", Value: "2 waiting", Inline: true}},
		Footer:    "Panel",
	})
	if e.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("Timestamp = %q", e.Timestamp)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline || e.Footer.Text != "Panel" || e.Thumbnail != nil {
		t.Errorf("embed = %+v", e)
	}
}
