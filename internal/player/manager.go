package player

import (
	"context"
	"sync"
	"time"

	"discbot/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Deps are the collaborators shared by every guild player.
type Deps struct {
	Resolver Resolver
	Panels   PanelTransport
	Settings SettingsStore
	// NewVoice creates the audio transport for a guild.
	NewVoice func(guildID string) Voice
	// GuildName resolves a guild's display name for the panel footer.
	GuildName func(guildID string) string
}

// Manager tracks per-guild Player instances. Players are created lazily and
// live until Shutdown.
type Manager struct {
	players map[string]*Player
	deps    Deps
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewManager creates a new player Manager.
func NewManager(deps Deps, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		players: make(map[string]*Player),
		deps:    deps,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Get returns the player for a guild, or nil if none exists.
func (m *Manager) Get(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[guildID]
}

// GetOrCreate returns the existing player or creates a new one, restoring
// its saved settings.
func (m *Manager) GetOrCreate(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.players[guildID]; ok {
		return p
	}

	logger := log.With().Str("component", "player").Str("guild", guildID).Logger()
	panel := NewPanel(m.deps.Panels, m.opts.BumpEvery, m.opts.PanelLookback, logger)
	p := newPlayer(m.ctx, &m.wg, guildID, m.deps.NewVoice(guildID), panel, m.deps, m.opts, logger)

	if m.deps.Settings != nil {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		s, err := m.deps.Settings.GuildSettings(ctx, guildID)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to load guild settings")
		} else {
			p.applySettings(s)
		}
	}

	m.players[guildID] = p
	metrics.Players.Inc()
	logger.Info().Msg("Created new player")
	return p
}

// Len returns the number of guild players.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// Shutdown stops every playback loop, disconnects voice and waits for the
// loops to exit or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) {
	m.cancel()

	m.mu.Lock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Timed out waiting for playback loops")
	}

	for _, p := range players {
		if p.voice.Connected() {
			if err := p.voice.Disconnect(); err != nil {
				log.Debug().Err(err).Str("guild", p.GuildID).Msg("Voice disconnect failed")
			}
		}
		p.sweep()
	}
}
