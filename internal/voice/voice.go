// Package voice implements the per-guild audio transport on a discordgo
// voice connection.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("not connected to a voice channel")

// Conn is one guild's voice transport.
type Conn struct {
	session   *discordgo.Session
	guildID   string
	ffmpeg    string
	newSource func(streamURL string, kbps int) (FrameSource, error)
	join      func(channelID string) (*discordgo.VoiceConnection, error)
	leave     func(*discordgo.VoiceConnection) error
	log       zerolog.Logger

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	channelID string
	stream    *stream
}

// New returns a disconnected transport for guildID.
func New(session *discordgo.Session, guildID, ffmpegPath string) *Conn {
	c := &Conn{
		session: session,
		guildID: guildID,
		ffmpeg:  ffmpegPath,
		log:     log.With().Str("component", "voice").Str("guild", guildID).Logger(),
	}
	c.newSource = func(streamURL string, kbps int) (FrameSource, error) {
		return NewEncoder(c.ffmpeg, streamURL, kbps)
	}
	c.join = func(channelID string) (*discordgo.VoiceConnection, error) {
		return c.session.ChannelVoiceJoin(c.guildID, channelID, false, true)
	}
	c.leave = func(vc *discordgo.VoiceConnection) error {
		return vc.Disconnect()
	}
	return c
}

// Connect joins channelID, moving if already connected elsewhere.
func (c *Conn) Connect(ctx context.Context, channelID string) error {
	c.mu.Lock()
	c.syncLocked()
	if c.vc != nil && c.channelID == channelID {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ch := make(chan joinResult, 1)
	go func() {
		vc, err := c.join(channelID)
		ch <- joinResult{vc, err}
	}()

	var res joinResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		go c.dropLateJoin(ch)
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	c.mu.Lock()
	c.vc = res.vc
	c.channelID = channelID
	c.mu.Unlock()
	c.log.Info().Str("channel", channelID).Msg("Joined voice channel")
	return nil
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// dropLateJoin waits for a join whose caller gave up and leaves the channel
// again if it succeeded after all.
func (c *Conn) dropLateJoin(ch <-chan joinResult) {
	res := <-ch
	if res.err != nil || res.vc == nil {
		return
	}
	c.mu.Lock()
	current := c.vc == res.vc
	c.mu.Unlock()
	// discordgo keeps one connection per guild; a newer Connect may own it.
	if current {
		return
	}
	c.log.Info().Msg("Leaving voice channel joined after timeout")
	if err := c.leave(res.vc); err != nil {
		c.log.Debug().Err(err).Msg("Late voice disconnect failed")
	}
}

// Disconnect stops playback and leaves the channel.
func (c *Conn) Disconnect() error {
	c.Stop()

	c.mu.Lock()
	vc := c.vc
	c.vc = nil
	c.channelID = ""
	c.mu.Unlock()

	if vc == nil {
		return nil
	}
	c.log.Info().Msg("Leaving voice channel")
	return c.leave(vc)
}

// Connected reports whether the bot is in a voice channel. A kick or a
// channel delete is noticed here through the bot's own voice state.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked()
	return c.vc != nil
}

// channel returns the channel the bot is in, following moves.
func (c *Conn) channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked()
	return c.channelID
}

// syncLocked reconciles the connection with the bot's voice state in the
// guild cache. No state means the bot was disconnected from outside; another
// channel means it was moved. Callers hold c.mu.
func (c *Conn) syncLocked() {
	if c.vc == nil {
		return
	}
	channelID, known := c.selfChannel()
	if !known || channelID == c.channelID {
		return
	}
	if channelID != "" {
		c.log.Info().Str("from", c.channelID).Str("to", channelID).Msg("Moved to another voice channel")
		c.channelID = channelID
		return
	}

	c.log.Warn().Str("channel", c.channelID).Msg("Voice connection lost")
	vc := c.vc
	c.vc, c.channelID = nil, ""
	if c.stream != nil {
		c.stream.stop()
	}
	go func() {
		if err := c.leave(vc); err != nil {
			c.log.Debug().Err(err).Msg("Voice cleanup failed")
		}
	}()
}

// selfChannel looks up the bot's own voice channel in the state cache.
// known is false when the cache cannot tell.
func (c *Conn) selfChannel() (channelID string, known bool) {
	if c.session == nil || c.session.State == nil || !c.session.State.TrackVoice || c.session.State.User == nil {
		return "", false
	}
	g, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return "", false
	}
	self := c.session.State.User.ID

	c.session.State.RLock()
	defer c.session.State.RUnlock()
	for _, vs := range g.VoiceStates {
		if vs.UserID == self {
			return vs.ChannelID, true
		}
	}
	return "", true
}

// ChannelBitrate returns the channel bitrate in bps, or 0 when unknown.
func (c *Conn) ChannelBitrate() int {
	channelID := c.channel()
	if channelID == "" {
		return 0
	}
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		if ch, err = c.session.Channel(channelID); err != nil {
			return 0
		}
	}
	return ch.Bitrate
}

// HumanCount counts non-bot members in the connected channel.
func (c *Conn) HumanCount() int {
	channelID := c.channel()
	if channelID == "" {
		return 0
	}
	g, err := c.session.State.Guild(c.guildID)
	if err != nil {
		return 0
	}

	var self string
	if c.session.State.User != nil {
		self = c.session.State.User.ID
	}

	c.session.State.RLock()
	states := append([]*discordgo.VoiceState(nil), g.VoiceStates...)
	c.session.State.RUnlock()

	n := 0
	for _, vs := range states {
		if vs.ChannelID != channelID || vs.UserID == self {
			continue
		}
		if c.isBot(vs) {
			continue
		}
		n++
	}
	return n
}

func (c *Conn) isBot(vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if m, err := c.session.State.Member(c.guildID, vs.UserID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return false
}

// Play starts transmitting streamURL at kbps. onDone runs once, after the
// transmission has ended for any reason.
func (c *Conn) Play(streamURL string, kbps int, onDone func(error)) error {
	c.mu.Lock()
	vc := c.vc
	old := c.stream
	c.mu.Unlock()
	if vc == nil {
		return ErrNotConnected
	}
	if old != nil {
		old.stop()
		<-old.done
	}

	src, err := c.newSource(streamURL, ClampBitrate(kbps))
	if err != nil {
		return err
	}
	s := newStream(src, vc.OpusSend, func(on bool) { vc.Speaking(on) })

	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()

	go func() {
		err := s.run()
		c.mu.Lock()
		if c.stream == s {
			c.stream = nil
		}
		c.mu.Unlock()
		if err != nil {
			c.log.Warn().Err(err).Msg("Stream ended with error")
		}
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

func (c *Conn) current() *stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *Conn) Pause() {
	if s := c.current(); s != nil {
		s.setPaused(true)
	}
}

func (c *Conn) Resume() {
	if s := c.current(); s != nil {
		s.setPaused(false)
	}
}

// Stop ends the current transmission, if any. onDone still fires.
func (c *Conn) Stop() {
	if s := c.current(); s != nil {
		s.stop()
	}
}

func (c *Conn) Playing() bool {
	s := c.current()
	return s != nil && !s.isPaused()
}

func (c *Conn) Paused() bool {
	s := c.current()
	return s != nil && s.isPaused()
}

// stream pumps frames from a FrameSource into a voice connection.
type stream struct {
	src      FrameSource
	out      chan<- []byte
	speaking func(bool)

	mu       sync.Mutex
	paused   bool
	resume   chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func newStream(src FrameSource, out chan<- []byte, speaking func(bool)) *stream {
	return &stream{
		src:      src,
		out:      out,
		speaking: speaking,
		resume:   make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// sendTimeout bounds how long a frame may wait for the voice connection.
const sendTimeout = 5 * time.Second

func (s *stream) run() error {
	defer close(s.done)
	defer s.src.Stop()

	s.speaking(true)
	defer s.speaking(false)

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	for {
		if err := s.waitWhilePaused(); err != nil {
			return nil
		}
		frame, err := s.src.OpusFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			select {
			case <-s.quit:
				return nil
			default:
			}
			return err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sendTimeout)
		select {
		case s.out <- frame:
		case <-s.quit:
			return nil
		case <-timer.C:
			return fmt.Errorf("voice connection stalled for %s", sendTimeout)
		}
	}
}

var errQuit = errors.New("stream stopped")

func (s *stream) waitWhilePaused() error {
	for {
		s.mu.Lock()
		paused, resume := s.paused, s.resume
		s.mu.Unlock()
		if !paused {
			select {
			case <-s.quit:
				return errQuit
			default:
				return nil
			}
		}
		select {
		case <-resume:
		case <-s.quit:
			return errQuit
		}
	}
}

func (s *stream) setPaused(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == p {
		return
	}
	s.paused = p
	if p {
		s.speaking(false)
		return
	}
	close(s.resume)
	s.resume = make(chan struct{})
	s.speaking(true)
}

func (s *stream) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *stream) stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.src.Stop()
	})
}
