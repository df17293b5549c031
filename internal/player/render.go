package player

import (
	"fmt"
	"strings"
	"time"
)

const (
	panelTitle       = "DiscBot Music Console"
	progressBarWidth = 18
	upNextLimit      = 5
)

var repeatPalette = map[RepeatMode]int{
	RepeatOff: 0x5865F2,
	RepeatOne: 0xFEE75C,
	RepeatAll: 0x57F287,
}

// Snapshot is the player state the panel is rendered from.
type Snapshot struct {
	GuildName string
	Connected bool
	Playing   bool
	Paused    bool
	Current   *Track
	StartedAt time.Time
	Upcoming  []Track
	QueueLen  int
	Repeat    RepeatMode
	CanGoBack bool
	LogoURL   string
}

// State derives the coarse playback state.
func (s Snapshot) State() State {
	switch {
	case s.Playing:
		return StatePlaying
	case s.Paused && s.Current != nil:
		return StatePaused
	case s.Connected:
		return StateConnectedEmpty
	default:
		return StateNoConnection
	}
}

// Field is one name/value block of the panel.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Controls describes the state of the panel's buttons.
type Controls struct {
	PrevEnabled bool
	Paused      bool
	Repeat      RepeatMode
}

// PanelContent is the transport-neutral content of a panel message.
type PanelContent struct {
	Title       string
	Description string
	Color       int
	Timestamp   time.Time
	Fields      []Field
	Thumbnail   string
	Footer      string
	Controls    Controls
}

// Render builds the panel content for a snapshot. It has no side effects.
func Render(s Snapshot, now time.Time) PanelContent {
	repeat := s.Repeat
	if repeat == "" {
		repeat = RepeatOff
	}

	var status string
	switch {
	case s.Playing:
		status = "▶️ Streaming"
	case s.Paused && s.Current != nil:
		status = "⏸️ Waiting to resume"
	case s.Current != nil:
		status = "📻 Standby"
	case s.Connected:
		status = "💤 Awaiting tracks"
	default:
		status = "💿 Use **/play** to begin"
	}

	var deck []string
	if cur := s.Current; cur != nil {
		if s.Playing || s.Paused {
			deck = append(deck, fmt.Sprintf("**[%s](%s)**", cur.Title, cur.PageURL))
			if bar, ok := ProgressBar(now.Sub(s.StartedAt), cur.Duration); ok && !s.StartedAt.IsZero() {
				deck = append(deck, "`"+bar+"`")
			}
			if cur.RequestedBy != "" {
				deck = append(deck, fmt.Sprintf("Requested • <@%s>", cur.RequestedBy))
			}
		} else {
			deck = append(deck, fmt.Sprintf("Last track: **[%s](%s)**", cur.Title, cur.PageURL))
		}
	} else {
		deck = append(deck, "Queue a song with `/play`.")
	}

	fields := []Field{
		{Name: "Deck Feed", Value: strings.Join(deck, "\n")},
		{Name: "Queue Depth", Value: fmt.Sprintf("%d waiting", s.QueueLen), Inline: true},
		{Name: "Repeat Mode", Value: repeat.Badge(), Inline: true},
	}

	if len(s.Upcoming) > 0 {
		upcoming := s.Upcoming
		if len(upcoming) > upNextLimit {
			upcoming = upcoming[:upNextLimit]
		}
		lines := make([]string, 0, len(upcoming)+1)
		for idx, t := range upcoming {
			lines = append(lines, fmt.Sprintf("`%02d` [%s](%s)", idx+1, t.Title, t.PageURL))
		}
		if s.QueueLen > len(upcoming) {
			lines = append(lines, fmt.Sprintf("…and %d more in queue", s.QueueLen-len(upcoming)))
		}
		fields = append(fields, Field{Name: "Up Next", Value: strings.Join(lines, "\n")})
	}

	footer := "Panel"
	if s.GuildName != "" {
		footer += " • " + s.GuildName
	}
	footer += " • Repeat " + strings.ToUpper(string(repeat))

	thumbnail := s.LogoURL
	if thumbnail == "" && s.Current != nil {
		thumbnail = s.Current.Thumbnail
	}

	return PanelContent{
		Title:       panelTitle,
		Description: status,
		Color:       repeatPalette[repeat],
		Timestamp:   now,
		Fields:      fields,
		Thumbnail:   thumbnail,
		Footer:      footer,
		Controls: Controls{
			PrevEnabled: s.CanGoBack,
			Paused:      s.Paused,
			Repeat:      repeat,
		},
	}
}

// Progress returns the elapsed fraction of a track and its "pos/total"
// label. Elapsed time is clamped into [0, duration]. ok is false for live
// tracks, which have no progress.
func Progress(elapsed, duration time.Duration) (ratio float64, label string, ok bool) {
	if duration <= 0 {
		return 0, "live", false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > duration {
		elapsed = duration
	}
	ratio = float64(elapsed) / float64(duration)
	return ratio, FormatDuration(elapsed) + "/" + FormatDuration(duration), true
}

// ProgressBar renders Progress as a fixed-width bar followed by its label.
func ProgressBar(elapsed, duration time.Duration) (string, bool) {
	ratio, label, ok := Progress(elapsed, duration)
	if !ok {
		return "", false
	}
	filled := int(ratio * progressBarWidth)
	return strings.Repeat("▰", filled) + strings.Repeat("▱", progressBarWidth-filled) + " " + label, true
}

// FormatDuration formats a duration as m:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "live"
	}
	total := int(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
