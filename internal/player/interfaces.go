package player

import "context"

// Voice is the audio transport for one guild. A Player owns its Voice
// exclusively.
type Voice interface {
	// Connect joins channelID, or moves there if already connected elsewhere.
	Connect(ctx context.Context, channelID string) error
	Disconnect() error
	Connected() bool

	// ChannelBitrate is the connected channel's advertised bitrate in bps.
	ChannelBitrate() int
	// HumanCount is the number of non-bot members in the connected channel.
	HumanCount() int

	// Play starts transmitting streamURL. onDone is called exactly once when
	// the transmission ends, whether it finished, failed or was stopped.
	Play(streamURL string, kbps int, onDone func(error)) error
	Pause()
	Resume()
	Stop()
	Playing() bool
	Paused() bool
}

// PanelMessage is a recent message in the panel channel.
type PanelMessage struct {
	ID string
	// Marked is true for messages authored by the bot that carry the panel marker.
	Marked bool
}

// PanelTransport posts and maintains panel messages. Implementations map
// missing messages to ErrPanelNotFound and permission failures to
// ErrPanelForbidden.
type PanelTransport interface {
	Send(ctx context.Context, channelID string, content PanelContent) (string, error)
	Edit(ctx context.Context, channelID, messageID string, content PanelContent) error
	Delete(ctx context.Context, channelID, messageID string) error
	Recent(ctx context.Context, channelID string, limit int) ([]PanelMessage, error)
	LastMessageID(ctx context.Context, channelID string) (string, error)
}

// Resolver turns a user query into playable tracks. It never returns an
// empty slice without an error.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]Track, error)
}

// Sweeper is implemented by resolvers that hold temporary files between
// calls.
type Sweeper interface {
	Sweep()
}

// Settings are the per-guild preferences that survive restarts.
type Settings struct {
	PanelChannelID string
	Repeat         RepeatMode
}

// SettingsStore persists guild settings.
type SettingsStore interface {
	GuildSettings(ctx context.Context, guildID string) (Settings, error)
	SaveGuildSettings(ctx context.Context, guildID string, s Settings) error
}
