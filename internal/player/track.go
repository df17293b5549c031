package player

import (
	"fmt"
	"strings"
	"time"
)

// Track is a resolved, playable media reference. A Track is never modified
// once it has been admitted to a queue; Seq is its identity.
type Track struct {
	Seq         uint64
	Title       string
	StreamURL   string
	PageURL     string
	Duration    time.Duration // zero for live or unknown length
	Thumbnail   string
	RequestedBy string // user ID
}

// Live reports whether the track has no known duration.
func (t Track) Live() bool {
	return t.Duration <= 0
}

// RepeatMode controls what the playback loop does when a track finishes.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// ParseRepeatMode accepts off, one or all (case-insensitive).
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(strings.ToLower(strings.TrimSpace(s))) {
	case RepeatOff:
		return RepeatOff, nil
	case RepeatOne:
		return RepeatOne, nil
	case RepeatAll:
		return RepeatAll, nil
	}
	return RepeatOff, fmt.Errorf("invalid repeat mode %q (valid: off, one, all)", s)
}

// Next returns the mode the panel's repeat button cycles to.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// Badge is the human-readable label shown on the panel.
func (m RepeatMode) Badge() string {
	switch m {
	case RepeatOne:
		return "🔂 Single"
	case RepeatAll:
		return "🔁 Queue"
	default:
		return "🚫 Off"
	}
}

// State is the coarse playback state of a guild player.
type State int

const (
	StateNoConnection State = iota
	StateConnectedEmpty
	StatePlaying
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateConnectedEmpty:
		return "connected_empty"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "no_connection"
	}
}
