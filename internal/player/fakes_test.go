package player

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeVoice struct {
	mu          sync.Mutex
	connected   bool
	channelID   string
	humans      int
	bitrate     int
	playing     bool
	paused      bool
	onDone      func(error)
	playErr     error
	disconnects int
	lastKbps    int
	played      chan string
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{humans: 1, bitrate: 64000, played: make(chan string, 32)}
}

func (v *fakeVoice) Connect(_ context.Context, channelID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = true
	v.channelID = channelID
	return nil
}

func (v *fakeVoice) Disconnect() error {
	v.mu.Lock()
	v.connected = false
	v.disconnects++
	cb := v.onDone
	v.onDone = nil
	v.playing, v.paused = false, false
	v.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
	return nil
}

func (v *fakeVoice) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *fakeVoice) ChannelBitrate() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bitrate
}

func (v *fakeVoice) HumanCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.humans
}

func (v *fakeVoice) Play(url string, kbps int, onDone func(error)) error {
	v.mu.Lock()
	if v.playErr != nil {
		v.mu.Unlock()
		return v.playErr
	}
	v.playing = true
	v.paused = false
	v.onDone = onDone
	v.lastKbps = kbps
	v.mu.Unlock()
	v.played <- url
	return nil
}

func (v *fakeVoice) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		v.playing, v.paused = false, true
	}
}

func (v *fakeVoice) Resume() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		v.playing, v.paused = true, false
	}
}

func (v *fakeVoice) Stop() { v.finish(nil) }

// finish ends the current transmission the way the real transport does.
func (v *fakeVoice) finish(err error) {
	v.mu.Lock()
	cb := v.onDone
	v.onDone = nil
	v.playing, v.paused = false, false
	v.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (v *fakeVoice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

func (v *fakeVoice) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *fakeVoice) setHumans(n int) {
	v.mu.Lock()
	v.humans = n
	v.mu.Unlock()
}

// drop simulates the bot being disconnected by someone else. The stream
// callback is left to the player's own Stop.
func (v *fakeVoice) drop() {
	v.mu.Lock()
	v.connected = false
	v.mu.Unlock()
}

func (v *fakeVoice) disconnectCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disconnects
}

type fakeMessage struct {
	id      string
	marked  bool
	content PanelContent
}

type fakePanels struct {
	mu        sync.Mutex
	next      int
	messages  []fakeMessage
	forbidden bool
	sends     int
	edits     int
}

func (f *fakePanels) Send(_ context.Context, _ string, content PanelContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forbidden {
		return "", ErrPanelForbidden
	}
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.messages = append(f.messages, fakeMessage{id: id, marked: true, content: content})
	f.sends++
	// Widen the window for interleaving when callers are not serialised.
	time.Sleep(time.Millisecond)
	return id, nil
}

func (f *fakePanels) Edit(_ context.Context, _, messageID string, content PanelContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].id == messageID {
			f.messages[i].content = content
			f.edits++
			return nil
		}
	}
	return ErrPanelNotFound
}

func (f *fakePanels) Delete(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].id == messageID {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return ErrPanelNotFound
}

func (f *fakePanels) Recent(_ context.Context, _ string, limit int) ([]PanelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PanelMessage
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, PanelMessage{ID: f.messages[i].id, Marked: f.messages[i].marked})
	}
	return out, nil
}

func (f *fakePanels) LastMessageID(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return "", nil
	}
	return f.messages[len(f.messages)-1].id, nil
}

// chat posts an ordinary user message.
func (f *fakePanels) chat() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.messages = append(f.messages, fakeMessage{id: id})
	return id
}

// stray posts a marked panel that the reconciler does not know about.
func (f *fakePanels) stray() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.messages = append(f.messages, fakeMessage{id: id, marked: true})
	return id
}

func (f *fakePanels) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits
}

func (f *fakePanels) markedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.marked {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	tracks []Track
	err    error
	sweeps int
	mu     sync.Mutex
}

func (r *fakeResolver) Resolve(context.Context, string) ([]Track, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.tracks, nil
}

func (r *fakeResolver) Sweep() {
	r.mu.Lock()
	r.sweeps++
	r.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.QueuePoll = 5 * time.Millisecond
	opts.LastPlayedHold = 0
	opts.RefreshEvery = time.Hour
	return opts
}

// newTestPlayer builds a player without a background loop; tests drive it
// with step.
func newTestPlayer(t *testing.T, opts Options) (*Player, *fakeVoice, *fakePanels, *fakeResolver) {
	t.Helper()
	voice := newFakeVoice()
	voice.connected = true
	panels := &fakePanels{}
	res := &fakeResolver{}
	panel := NewPanel(panels, opts.BumpEvery, opts.PanelLookback, zerolog.Nop())
	p := newPlayer(nil, nil, "g1", voice, panel, Deps{Resolver: res}, opts, zerolog.Nop())
	return p, voice, panels, res
}

func tracks(titles ...string) []Track {
	out := make([]Track, 0, len(titles))
	for _, title := range titles {
		out = append(out, Track{
			Title:     title,
			StreamURL: "https://media.example/" + title,
			PageURL:   "https://page.example/" + title,
			Duration:  200 * time.Second,
		})
	}
	return out
}

func waitPlayed(t *testing.T, v *fakeVoice) string {
	t.Helper()
	select {
	case url := <-v.played:
		return url
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return ""
	}
}

// stepAsync runs one loop step in the background and returns a channel
// closed when it returns.
func stepAsync(p *Player) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.step(context.Background())
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop step")
	}
}

func queueSeqs(p *Player) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var seqs []uint64
	for _, t := range p.queue.Peek(p.queue.Len()) {
		seqs = append(seqs, t.Seq)
	}
	return seqs
}
