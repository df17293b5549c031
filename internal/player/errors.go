package player

import "errors"

var (
	// ErrNothingPlaying is returned by controls that need a current track.
	ErrNothingPlaying = errors.New("nothing is playing")

	// ErrNotConnected is returned when a control needs a voice connection.
	ErrNotConnected = errors.New("not connected to a voice channel")

	// ErrNoTracks is returned when a query resolved but nothing playable was admitted.
	ErrNoTracks = errors.New("no playable tracks")

	// ErrPanelNotFound is returned by a PanelTransport when the panel message is gone.
	ErrPanelNotFound = errors.New("panel message not found")

	// ErrPanelForbidden is returned by a PanelTransport when the bot lacks
	// permission to post in the panel channel.
	ErrPanelForbidden = errors.New("panel channel forbidden")
)
