package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"discbot/internal/metrics"
)

// ensureLoop starts the playback loop goroutine unless it is already running.
func (p *Player) ensureLoop() {
	p.mu.Lock()
	if p.looping || p.ctx == nil {
		p.mu.Unlock()
		return
	}
	p.looping = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run()
}

func (p *Player) run() {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.looping = false
		p.mu.Unlock()
	}()

	p.log.Debug().Msg("Playback loop started")
	for p.ctx.Err() == nil {
		p.step(p.ctx)
	}
	p.log.Debug().Msg("Playback loop stopped")
}

// step runs one pass of the playback loop: alone check, idle check, queue
// wait or one full track.
func (p *Player) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("Playback loop iteration panicked")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}()

	connected := p.voice.Connected()
	if connected && p.voice.HumanCount() == 0 {
		p.teardown(ctx, "alone")
		return
	}
	if !connected && p.hasSession() {
		p.teardown(ctx, "disconnected")
		return
	}
	if p.idleExpired() {
		p.teardown(ctx, "idle")
		return
	}

	p.mu.Lock()
	track, ok := p.queue.PopFront()
	stops := p.stops
	p.mu.Unlock()
	if !ok {
		p.waitForTracks(ctx)
		return
	}

	if !p.voice.Connected() {
		p.log.Debug().Uint64("seq", track.Seq).Msg("Dropping track, not connected")
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		return
	}

	p.play(ctx, track, stops)
}

// hasSession reports whether there is playback state left to tear down.
func (p *Player) hasSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil || p.queue.Len() > 0
}

// idleExpired tracks the idle countdown and reports whether it ran out.
func (p *Player) idleExpired() bool {
	idle := p.voice.Connected() && !p.voice.Playing() && !p.voice.Paused()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !idle || p.queue.Len() > 0 {
		p.idleSince = time.Time{}
		return false
	}
	now := p.now()
	if p.idleSince.IsZero() {
		p.idleSince = now
		return false
	}
	return now.Sub(p.idleSince) >= p.opts.IdleTimeout
}

// waitForTracks blocks until something is enqueued, the poll interval
// passes or the idle countdown is due.
func (p *Player) waitForTracks(ctx context.Context) {
	wait := p.opts.QueuePoll
	p.mu.Lock()
	if !p.idleSince.IsZero() {
		remaining := p.opts.IdleTimeout - p.now().Sub(p.idleSince)
		wait = max(0, min(wait, remaining))
	}
	noCurrent := p.current == nil
	p.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-p.wake:
	case <-timer.C:
		if p.opts.DeletePanelOnIdle && noCurrent {
			if err := p.panel.Delete(ctx); err != nil {
				p.log.Debug().Err(err).Msg("Failed to delete idle panel")
			}
		}
	}
}

// play transmits one track and blocks until it completes. stops is the stop
// generation seen when the track was popped.
func (p *Player) play(ctx context.Context, track Track, stops uint64) {
	p.mu.Lock()
	if p.stops != stops {
		p.mu.Unlock()
		p.log.Debug().Uint64("seq", track.Seq).Msg("Dropping track, stopped before start")
		return
	}
	p.current = &track
	p.history.Record(track)
	p.startedAt = p.now()
	p.idleSince = time.Time{}
	p.active = true
	cursor, depth := p.history.Cursor(), p.history.Len()
	p.mu.Unlock()

	p.log.Info().
		Uint64("seq", track.Seq).
		Str("title", track.Title).
		Int("cursor", cursor).
		Int("history", depth).
		Msg("Now playing")

	done := make(chan error, 1)
	var once sync.Once
	onDone := func(err error) {
		once.Do(func() { done <- err })
	}

	if err := p.voice.Play(track.StreamURL, p.bitrate(), onDone); err != nil {
		p.log.Error().Err(err).Msg("Playback failed to start")
		onDone(err)
	} else {
		metrics.TracksStarted.Inc()
	}

	p.RefreshPanel(ctx)
	p.bumpPanel(ctx, true)

	trackCtx, cancel := context.WithCancel(ctx)
	refresherDone := make(chan struct{})
	go func() {
		defer close(refresherDone)
		p.refresher(trackCtx)
	}()

	var err error
wait:
	for {
		select {
		case err = <-done:
			break wait
		case <-p.wake:
			if !p.voice.Connected() || p.voice.HumanCount() == 0 {
				p.mu.Lock()
				p.stopping = true
				p.mu.Unlock()
				p.voice.Stop()
			}
		case <-ctx.Done():
			p.voice.Stop()
			err = ctx.Err()
			break wait
		}
	}
	cancel()
	<-refresherDone

	if err != nil && !errors.Is(err, context.Canceled) {
		metrics.TrackFailures.Inc()
		p.log.Warn().Err(err).Uint64("seq", track.Seq).Msg("Stream ended with error")
	} else {
		p.log.Debug().Uint64("seq", track.Seq).Msg("Stream finished")
	}
	p.sweep()

	if ctx.Err() != nil {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
		return
	}
	p.complete(ctx)
}

// complete applies the stop and repeat policy after a track ends.
func (p *Player) complete(ctx context.Context) {
	p.mu.Lock()
	p.active = false
	p.startedAt = time.Time{}
	stopping, advancing := p.stopping, p.advancing
	p.stopping, p.advancing = false, false

	if stopping {
		p.current = nil
		p.mu.Unlock()
		p.settlePanel(ctx)
		return
	}

	if p.repeat == RepeatOne && p.current != nil && !advancing {
		p.queue.PushFront(*p.current)
	}
	if p.queue.Len() == 0 && p.repeat == RepeatAll && p.history.Len() > 0 {
		p.queue.Append(p.history.Entries()...)
	}
	drained := p.queue.Len() == 0
	p.mu.Unlock()

	p.RefreshPanel(ctx)
	if !drained {
		return
	}

	p.bumpPanel(ctx, true)
	p.hold(ctx)

	p.mu.Lock()
	stillEmpty := p.queue.Len() == 0
	if stillEmpty {
		p.current = nil
	}
	p.mu.Unlock()
	if stillEmpty {
		p.settlePanel(ctx)
	}
}

// hold keeps the last-played track on the panel for a while after the
// queue drains. It ends early when new tracks arrive.
func (p *Player) hold(ctx context.Context) {
	if p.opts.LastPlayedHold <= 0 {
		return
	}
	timer := time.NewTimer(p.opts.LastPlayedHold)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-p.wake:
			if p.QueueLen() > 0 {
				return
			}
		}
	}
}

// refresher re-renders the panel on a fixed cadence until ctx is cancelled.
func (p *Player) refresher(ctx context.Context) {
	if p.opts.RefreshEvery <= 0 {
		return
	}
	t := time.NewTicker(p.opts.RefreshEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !p.voice.Playing() && !p.voice.Paused() {
				continue
			}
			p.RefreshPanel(ctx)
			p.bumpPanel(ctx, false)
		}
	}
}

// teardown disconnects voice and resets playback state.
func (p *Player) teardown(ctx context.Context, reason string) {
	p.log.Info().Str("reason", reason).Msg("Disconnecting voice")
	if err := p.voice.Disconnect(); err != nil {
		p.log.Debug().Err(err).Msg("Voice disconnect failed")
	}
	metrics.Disconnects.WithLabelValues(reason).Inc()

	p.mu.Lock()
	p.current = nil
	p.queue.Clear()
	p.idleSince = time.Time{}
	p.startedAt = time.Time{}
	p.mu.Unlock()

	p.sweep()
	p.settlePanel(ctx)
}

// settlePanel shows the idle panel, or deletes it when configured to.
func (p *Player) settlePanel(ctx context.Context) {
	if p.opts.DeletePanelOnIdle {
		if err := p.panel.Delete(ctx); err != nil {
			p.log.Debug().Err(err).Msg("Failed to delete panel")
		}
		return
	}
	p.RefreshPanel(ctx)
}
