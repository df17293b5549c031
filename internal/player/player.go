package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"discbot/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options tune the timers and limits of a guild player.
type Options struct {
	IdleTimeout       time.Duration
	QueuePoll         time.Duration
	LastPlayedHold    time.Duration
	RefreshEvery      time.Duration
	BumpEvery         time.Duration
	PanelLookback     int
	DeletePanelOnIdle bool
	BitrateCeiling    int // kbps, 0 for none
	ActivityRate      rate.Limit
	LogoURL           string
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:    300 * time.Second,
		QueuePoll:      30 * time.Second,
		LastPlayedHold: 20 * time.Second,
		RefreshEvery:   5 * time.Second,
		BumpEvery:      45 * time.Second,
		PanelLookback:  30,
		ActivityRate:   2,
	}
}

// Player manages audio playback for a single guild.
type Player struct {
	GuildID string

	mu        sync.Mutex
	queue     Queue
	history   *History
	current   *Track
	repeat    RepeatMode
	startedAt time.Time
	idleSince time.Time
	active    bool // a track is being transmitted
	stopping  bool
	stops     uint64 // bumped by Stop; a track popped before a Stop is dropped
	advancing bool // completion was requested by skip or navigation
	looping   bool

	wake     chan struct{}
	voice    Voice
	panel    *Panel
	resolver Resolver
	settings SettingsStore
	activity *rate.Limiter
	name     func() string

	opts Options
	now  func() time.Time
	log  zerolog.Logger

	ctx context.Context
	wg  *sync.WaitGroup
}

func newPlayer(ctx context.Context, wg *sync.WaitGroup, guildID string, voice Voice, panel *Panel, deps Deps, opts Options, logger zerolog.Logger) *Player {
	burst := int(opts.ActivityRate)
	if burst < 1 {
		burst = 1
	}
	return &Player{
		GuildID:  guildID,
		history:  NewHistory(),
		repeat:   RepeatOff,
		wake:     make(chan struct{}, 1),
		voice:    voice,
		panel:    panel,
		resolver: deps.Resolver,
		settings: deps.Settings,
		activity: rate.NewLimiter(opts.ActivityRate, burst),
		name: func() string {
			if deps.GuildName == nil {
				return ""
			}
			return deps.GuildName(guildID)
		},
		opts: opts,
		now:  time.Now,
		log:  logger,
		ctx:  ctx,
		wg:   wg,
	}
}

// Connect joins (or moves to) the voice channel and makes sure the playback
// loop is running.
func (p *Player) Connect(ctx context.Context, channelID string) error {
	if err := p.voice.Connect(ctx, channelID); err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	p.mu.Lock()
	p.idleSince = time.Time{}
	p.mu.Unlock()
	p.ensureLoop()
	p.signal()
	return nil
}

// Enqueue resolves query and appends the playable results to the queue.
func (p *Player) Enqueue(ctx context.Context, query, requestedBy string) ([]Track, error) {
	if p.resolver == nil {
		return nil, fmt.Errorf("no resolver configured")
	}
	tracks, err := p.resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	admitted := p.admit(tracks, requestedBy)
	if len(admitted) == 0 {
		return nil, ErrNoTracks
	}
	p.log.Info().Int("count", len(admitted)).Str("query", query).Msg("Enqueued tracks")
	p.ensureLoop()
	return admitted, nil
}

// admit appends tracks, resets the idle countdown and wakes the loop.
func (p *Player) admit(tracks []Track, requestedBy string) []Track {
	p.mu.Lock()
	admitted := p.queue.Admit(tracks, requestedBy)
	if len(admitted) > 0 {
		p.idleSince = time.Time{}
	}
	p.mu.Unlock()

	metrics.TracksEnqueued.Add(float64(len(admitted)))
	if len(admitted) > 0 {
		p.signal()
	}
	return admitted
}

// Pause pauses the current track. It reports whether anything changed.
func (p *Player) Pause() bool {
	if !p.voice.Playing() {
		return false
	}
	p.voice.Pause()
	p.log.Info().Msg("Paused playback")
	return true
}

// Resume resumes a paused track. It reports whether anything changed.
func (p *Player) Resume() bool {
	if !p.voice.Paused() {
		return false
	}
	p.voice.Resume()
	p.log.Info().Msg("Resumed playback")
	return true
}

// TogglePause pauses when playing and resumes when paused.
func (p *Player) TogglePause() bool {
	if p.voice.Paused() {
		return p.Resume()
	}
	return p.Pause()
}

// Stop clears the queue and ends the current track. The voice connection is
// kept; the idle policy disconnects later.
func (p *Player) Stop() {
	p.mu.Lock()
	p.queue.Clear()
	p.stops++
	if p.active {
		p.stopping = true
	}
	p.mu.Unlock()

	p.voice.Stop()
	p.sweep()
	p.log.Info().Msg("Stopped playback")
}

// Skip ends the current track. When the history cursor is behind the most
// recent entry, the next history entry plays instead of the queue head.
func (p *Player) Skip() error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	if next, ok := p.history.StepForward(); ok {
		p.queue.PushFront(next)
		p.log.Info().Uint64("seq", next.Seq).Int("cursor", p.history.Cursor()).Msg("History forward")
	}
	p.advancing = true
	p.mu.Unlock()

	p.voice.Stop()
	return nil
}

// Previous goes back one entry in history, or restarts the current track
// when already at the earliest entry. With nothing transmitting it queues
// the history entry before the cursor.
func (p *Player) Previous() error {
	p.mu.Lock()
	if p.current == nil || !p.active {
		if !p.voice.Connected() {
			p.mu.Unlock()
			return ErrNothingPlaying
		}
		target, ok := p.history.StepBack()
		if !ok {
			p.mu.Unlock()
			return ErrNothingPlaying
		}
		p.queue.PushFront(target)
		p.idleSince = time.Time{}
		p.log.Info().Uint64("seq", target.Seq).Int("cursor", p.history.Cursor()).Msg("History back while idle")
		p.mu.Unlock()

		p.ensureLoop()
		p.signal()
		return nil
	}
	cur := *p.current
	target, ok := p.history.StepBack()
	if ok {
		if !p.queue.Contains(cur.Seq) {
			p.queue.PushFront(cur)
		}
		p.queue.PushFront(target)
		p.log.Info().Uint64("seq", target.Seq).Int("cursor", p.history.Cursor()).Msg("History back")
	} else {
		p.queue.PushFront(cur)
		p.log.Info().Uint64("seq", cur.Seq).Msg("History back restart")
	}
	p.advancing = true
	p.mu.Unlock()

	p.voice.Stop()
	return nil
}

// CanGoBack reports whether Previous has anything to act on.
func (p *Player) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canGoBackLocked()
}

func (p *Player) canGoBackLocked() bool {
	if p.current != nil && p.active {
		return true
	}
	return p.history.Cursor() > 0 && p.voice.Connected()
}

// Repeat returns the current repeat mode.
func (p *Player) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

// SetRepeat changes the repeat mode and persists it.
func (p *Player) SetRepeat(ctx context.Context, mode RepeatMode) {
	p.mu.Lock()
	p.repeat = mode
	p.mu.Unlock()
	p.saveSettings(ctx)
}

// CycleRepeat advances off → one → all → off and returns the new mode.
func (p *Player) CycleRepeat(ctx context.Context) RepeatMode {
	p.mu.Lock()
	p.repeat = p.repeat.Next()
	mode := p.repeat
	p.mu.Unlock()
	p.saveSettings(ctx)
	return mode
}

// SetPanelChannel attaches the panel to channelID. Without force an existing
// panel channel is kept.
func (p *Player) SetPanelChannel(ctx context.Context, channelID string, force bool) {
	if p.panel.SetChannel(channelID, force) {
		p.saveSettings(ctx)
	}
}

// PanelChannel returns the channel the panel lives in.
func (p *Player) PanelChannel() string {
	return p.panel.Channel()
}

// RefreshPanel re-renders the panel in place.
func (p *Player) RefreshPanel(ctx context.Context) {
	if err := p.panel.PostOrUpdate(ctx, p.render); err != nil {
		p.log.Debug().Err(err).Msg("Panel refresh failed")
	}
}

func (p *Player) bumpPanel(ctx context.Context, force bool) {
	if err := p.panel.BumpIfStale(ctx, p.render, force); err != nil {
		p.log.Debug().Err(err).Msg("Panel bump failed")
	}
}

// OnChannelActivity refreshes and possibly bumps the panel when a message is
// posted in its channel. Refreshes are rate limited per guild.
func (p *Player) OnChannelActivity(ctx context.Context, channelID string) {
	if channelID == "" || channelID != p.panel.Channel() {
		return
	}
	if !p.activity.Allow() {
		return
	}
	p.RefreshPanel(ctx)
	p.bumpPanel(ctx, false)
}

// OnVoiceActivity is called when the membership of the voice channel may
// have changed, including the bot itself being moved or disconnected. A join
// resets the idle countdown; the loop re-checks the alone and disconnect
// policies right away.
func (p *Player) OnVoiceActivity() {
	if p.voice.Connected() && p.voice.HumanCount() > 0 {
		p.mu.Lock()
		p.idleSince = time.Time{}
		p.mu.Unlock()
	}
	p.signal()
}

// Snapshot returns the state the panel renders.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		GuildName: p.name(),
		Connected: p.voice.Connected(),
		Playing:   p.voice.Playing(),
		Paused:    p.voice.Paused(),
		StartedAt: p.startedAt,
		Upcoming:  p.queue.Peek(upNextLimit),
		QueueLen:  p.queue.Len(),
		Repeat:    p.repeat,
		CanGoBack: p.canGoBackLocked(),
		LogoURL:   p.opts.LogoURL,
	}
	if p.current != nil {
		cur := *p.current
		s.Current = &cur
	}
	return s
}

// State returns the coarse playback state.
func (p *Player) State() State {
	p.mu.Lock()
	stopping := p.stopping
	p.mu.Unlock()
	if stopping {
		return StateStopping
	}
	return p.Snapshot().State()
}

// Current returns the current track, if any.
func (p *Player) Current() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Track{}, false
	}
	return *p.current, true
}

// QueueLen returns the number of waiting tracks.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Render renders the panel content for the current state.
func (p *Player) Render() PanelContent {
	return p.render()
}

func (p *Player) render() PanelContent {
	return Render(p.Snapshot(), p.now())
}

func (p *Player) saveSettings(ctx context.Context) {
	if p.settings == nil {
		return
	}
	// The panel lock is taken before p.mu everywhere else; read it first.
	s := Settings{PanelChannelID: p.panel.Channel()}
	p.mu.Lock()
	s.Repeat = p.repeat
	p.mu.Unlock()
	if err := p.settings.SaveGuildSettings(ctx, p.GuildID, s); err != nil {
		p.log.Warn().Err(err).Msg("Failed to save guild settings")
	}
}

func (p *Player) applySettings(s Settings) {
	p.mu.Lock()
	if s.Repeat != "" {
		p.repeat = s.Repeat
	}
	p.mu.Unlock()
	p.panel.SetChannel(s.PanelChannelID, false)
}

// sweep releases temporary resources held by the resolver.
func (p *Player) sweep() {
	if sw, ok := p.resolver.(Sweeper); ok {
		sw.Sweep()
	}
}

// signal wakes the loop without blocking.
func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// bitrate picks the transmission bitrate: the channel's bitrate, capped by
// the configured ceiling and clamped to what the encoder accepts.
func (p *Player) bitrate() int {
	kbps := p.voice.ChannelBitrate() / 1000
	if kbps <= 0 {
		kbps = 128
	}
	if c := p.opts.BitrateCeiling; c > 0 {
		kbps = min(kbps, max(8, min(512, c)))
	}
	return max(8, min(512, kbps))
}
