package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRepeatOneRequeuesCurrent(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	admitted := p.admit(tracks("a", "b"), "u1")
	p.SetRepeat(context.Background(), RepeatOne)

	done := stepAsync(p)
	waitPlayed(t, voice)
	voice.finish(nil)
	waitDone(t, done)

	seqs := queueSeqs(p)
	if len(seqs) != 2 || seqs[0] != admitted[0].Seq {
		t.Errorf("queue = %v, want head seq %d", seqs, admitted[0].Seq)
	}
}

func TestSkipDoesNotRepeatOne(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	admitted := p.admit(tracks("a", "b"), "")
	p.SetRepeat(context.Background(), RepeatOne)

	done := stepAsync(p)
	waitPlayed(t, voice)
	if err := p.Skip(); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	waitDone(t, done)

	seqs := queueSeqs(p)
	if len(seqs) != 1 || seqs[0] != admitted[1].Seq {
		t.Errorf("queue = %v, want [%d]", seqs, admitted[1].Seq)
	}
}

func TestRepeatAllRefillsFromHistory(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	admitted := p.admit(tracks("a", "b"), "")
	p.SetRepeat(context.Background(), RepeatAll)

	for range admitted {
		done := stepAsync(p)
		waitPlayed(t, voice)
		voice.finish(nil)
		waitDone(t, done)
	}

	seqs := queueSeqs(p)
	if len(seqs) != 2 || seqs[0] != admitted[0].Seq || seqs[1] != admitted[1].Seq {
		t.Errorf("queue = %v, want [%d %d]", seqs, admitted[0].Seq, admitted[1].Seq)
	}
}

func TestRepeatOffDrainsAndClearsCurrent(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	p.admit(tracks("a"), "")

	done := stepAsync(p)
	waitPlayed(t, voice)
	voice.finish(nil)
	waitDone(t, done)

	if _, ok := p.Current(); ok {
		t.Error("current still set after queue drained")
	}
	if p.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", p.QueueLen())
	}
}

func TestAloneTearsDownBeforeQueueCheck(t *testing.T) {
	p, voice, _, res := newTestPlayer(t, testOptions())
	p.admit(tracks("a", "b"), "")
	voice.setHumans(0)

	p.step(context.Background())

	if voice.Connected() {
		t.Error("still connected while alone")
	}
	if p.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", p.QueueLen())
	}
	if _, ok := p.Current(); ok {
		t.Error("current still set after teardown")
	}
	select {
	case url := <-voice.played:
		t.Errorf("played %s while alone", url)
	default:
	}
	if res.sweeps == 0 {
		t.Error("teardown did not release resolver resources")
	}
}

func TestAloneDuringPlaybackStopsTrack(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	p.admit(tracks("a", "b"), "")

	done := stepAsync(p)
	waitPlayed(t, voice)
	voice.setHumans(0)
	p.OnVoiceActivity()
	waitDone(t, done)

	p.step(context.Background())
	if voice.Connected() || p.QueueLen() != 0 {
		t.Errorf("Connected()=%v QueueLen()=%d after everyone left", voice.Connected(), p.QueueLen())
	}
}

func TestIdleTimeoutDisconnects(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p.now = clock.Now

	p.step(context.Background())
	if !voice.Connected() {
		t.Fatal("disconnected before the idle timeout")
	}

	clock.Advance(299 * time.Second)
	p.step(context.Background())
	if !voice.Connected() {
		t.Fatal("disconnected before the idle timeout")
	}

	clock.Advance(2 * time.Second)
	p.step(context.Background())
	if voice.Connected() {
		t.Error("still connected after the idle timeout")
	}
}

func TestEnqueueResetsIdleCountdown(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, testOptions())
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p.now = clock.Now

	if p.idleExpired() {
		t.Fatal("idle expired immediately")
	}
	clock.Advance(299 * time.Second)

	p.admit(tracks("a"), "")
	p.mu.Lock()
	reset := p.idleSince.IsZero()
	p.queue.Clear()
	p.mu.Unlock()
	if !reset {
		t.Fatal("enqueue did not reset the idle countdown")
	}

	clock.Advance(2 * time.Second)
	if p.idleExpired() {
		t.Error("idle expired right after an enqueue")
	}
	clock.Advance(300 * time.Second)
	if !p.idleExpired() {
		t.Error("idle did not expire after a full timeout")
	}
}

func TestStopClearsQueueAndCurrent(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	p.admit(tracks("a", "b", "c"), "")
	p.SetRepeat(context.Background(), RepeatAll)

	done := stepAsync(p)
	waitPlayed(t, voice)
	p.Stop()
	waitDone(t, done)

	if p.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", p.QueueLen())
	}
	if _, ok := p.Current(); ok {
		t.Error("current still set after Stop")
	}
	if !voice.Connected() {
		t.Error("Stop disconnected voice")
	}
}

func TestPreviousWithoutCurrent(t *testing.T) {
	p, _, _, _ := newTestPlayer(t, testOptions())
	if err := p.Previous(); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("Previous() error = %v, want ErrNothingPlaying", err)
	}
	if err := p.Skip(); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("Skip() error = %v, want ErrNothingPlaying", err)
	}
}

func TestPreviousRestartsFirstTrack(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	admitted := p.admit(tracks("a", "b"), "")

	done := stepAsync(p)
	waitPlayed(t, voice)
	if err := p.Previous(); err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	waitDone(t, done)

	seqs := queueSeqs(p)
	if len(seqs) != 2 || seqs[0] != admitted[0].Seq {
		t.Errorf("queue = %v, want restart of %d", seqs, admitted[0].Seq)
	}
}

func TestPreviousAndForwardNavigation(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	admitted := p.admit(tracks("a", "b", "c"), "")
	a, b, c := admitted[0], admitted[1], admitted[2]

	// Play a to completion, then start b.
	done := stepAsync(p)
	waitPlayed(t, voice)
	voice.finish(nil)
	waitDone(t, done)

	done = stepAsync(p)
	if url := waitPlayed(t, voice); url != b.StreamURL {
		t.Fatalf("playing %s, want b", url)
	}

	// Back from b: a, then b, then c.
	if err := p.Previous(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)
	if seqs := queueSeqs(p); len(seqs) != 3 || seqs[0] != a.Seq || seqs[1] != b.Seq || seqs[2] != c.Seq {
		t.Fatalf("queue after Previous = %v, want [%d %d %d]", seqs, a.Seq, b.Seq, c.Seq)
	}

	done = stepAsync(p)
	if url := waitPlayed(t, voice); url != a.StreamURL {
		t.Fatalf("playing %s, want a", url)
	}
	p.mu.Lock()
	cursor := p.history.Cursor()
	p.mu.Unlock()
	if cursor != 0 {
		t.Errorf("history cursor = %d, want 0", cursor)
	}

	// Forward from a returns to b.
	if err := p.Skip(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)
	if seqs := queueSeqs(p); len(seqs) != 2 || seqs[0] != b.Seq {
		t.Errorf("queue after forward = %v, want head %d", seqs, b.Seq)
	}
}

func TestPlayFailureCompletesTrack(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	voice.playErr = errors.New("ffmpeg exploded")
	p.admit(tracks("a", "b"), "")

	p.step(context.Background())

	if p.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d, want 1", p.QueueLen())
	}
}

func TestPauseResume(t *testing.T) {
	p, voice, _, _ := newTestPlayer(t, testOptions())
	p.admit(tracks("a"), "")

	done := stepAsync(p)
	waitPlayed(t, voice)

	if !p.TogglePause() || p.State() != StatePaused {
		t.Errorf("State() = %v after pause, want paused", p.State())
	}
	if p.Pause() {
		t.Error("Pause() while paused reported a change")
	}
	if !p.TogglePause() || p.State() != StatePlaying {
		t.Errorf("State() = %v after resume, want playing", p.State())
	}

	voice.finish(nil)
	waitDone(t, done)
}

func TestBitrate(t *testing.T) {
	tests := []struct {
		channel int
		ceiling int
		want    int
	}{
		{64000, 0, 64},
		{384000, 96, 96},
		{0, 0, 128},
		{96000, 1000, 96},
		{1000000, 0, 512},
		{4000, 0, 8},
	}
	for _, tt := range tests {
		opts := testOptions()
		opts.BitrateCeiling = tt.ceiling
		p, voice, _, _ := newTestPlayer(t, opts)
		voice.bitrate = tt.channel
		if got := p.bitrate(); got != tt.want {
			t.Errorf("bitrate(channel=%d, ceiling=%d) = %d, want %d", tt.channel, tt.ceiling, got, tt.want)
		}
	}
}

func TestEnqueuePropagatesResolverError(t *testing.T) {
	p, _, _, res := newTestPlayer(t, testOptions())
	res.err = errors.New("no results")

	if _, err := p.Enqueue(context.Background(), "nothing", "u1"); err == nil {
		t.Error("Enqueue() error = nil, want resolver error")
	}

	res.err = nil
	res.tracks = []Track{{Title: "no stream"}}
	if _, err := p.Enqueue(context.Background(), "x", "u1"); !errors.Is(err, ErrNoTracks) {
		t.Errorf("Enqueue() error = %v, want ErrNoTracks", err)
	}
}

func TestOnChannelActivityRefreshesPanel(t *testing.T) {
	p, _, panels, _ := newTestPlayer(t, testOptions())
	p.SetPanelChannel(context.Background(), "c1", true)

	p.OnChannelActivity(context.Background(), "other")
	if panels.sends != 0 {
		t.Fatalf("activity in another channel posted a panel")
	}

	p.OnChannelActivity(context.Background(), "c1")
	if panels.markedCount() != 1 {
		t.Errorf("marked panels = %d, want 1", panels.markedCount())
	}
}

type memSettings struct {
	mu    sync.Mutex
	saved map[string]Settings
}

func (m *memSettings) GuildSettings(_ context.Context, guildID string) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[guildID], nil
}

func (m *memSettings) SaveGuildSettings(_ context.Context, guildID string, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[guildID] = s
	return nil
}

func TestManagerGetOrCreate(t *testing.T) {
	store := &memSettings{saved: map[string]Settings{
		"g1": {PanelChannelID: "c9", Repeat: RepeatAll},
	}}
	m := NewManager(Deps{
		Panels:   &fakePanels{},
		Settings: store,
		NewVoice: func(string) Voice { return newFakeVoice() },
	}, testOptions())
	defer m.Shutdown(context.Background())

	var wg sync.WaitGroup
	got := make([]*Player, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = m.GetOrCreate("g1")
		}(i)
	}
	wg.Wait()

	for i := range got {
		if got[i] != got[0] {
			t.Fatalf("GetOrCreate returned different players")
		}
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if got[0].Repeat() != RepeatAll || got[0].PanelChannel() != "c9" {
		t.Errorf("restored settings = %s/%s, want all/c9", got[0].Repeat(), got[0].PanelChannel())
	}

	got[0].CycleRepeat(context.Background())
	if s := store.saved["g1"]; s.Repeat != RepeatOff || s.PanelChannelID != "c9" {
		t.Errorf("saved settings = %+v", s)
	}
}

func TestManagerShutdownStopsLoop(t *testing.T) {
	voice := newFakeVoice()
	m := NewManager(Deps{
		Panels:   &fakePanels{},
		Resolver: &fakeResolver{tracks: tracks("a")},
		NewVoice: func(string) Voice { return voice },
	}, testOptions())

	p := m.GetOrCreate("g1")
	if err := p.Connect(context.Background(), "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Enqueue(context.Background(), "a", "u1"); err != nil {
		t.Fatal(err)
	}
	waitPlayed(t, voice)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	if ctx.Err() != nil {
		t.Error("Shutdown timed out waiting for the loop")
	}
	if voice.Connected() {
		t.Error("voice still connected after Shutdown")
	}
}
