package voice

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/jonas747/ogg"
)

const (
	MinBitrate = 8
	MaxBitrate = 512
)

// ClampBitrate limits kbps to the range the Opus encoder accepts.
func ClampBitrate(kbps int) int {
	return max(MinBitrate, min(MaxBitrate, kbps))
}

// FFmpegArgs builds the command line that turns a remote stream into 48 kHz
// stereo Opus in an Ogg container on stdout.
func FFmpegArgs(streamURL string, kbps int) []string {
	return []string{
		"-nostdin",
		"-rw_timeout", "30000000",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-probesize", "10000000",
		"-analyzeduration", "10000000",
		"-i", streamURL,
		"-vn", "-sn", "-dn",
		"-af", "aresample=async=1:min_hard_comp=0.1:first_pts=0,aresample=48000,aformat=sample_fmts=s16:channel_layouts=stereo",
		"-map", "0:a",
		"-c:a", "libopus",
		"-b:a", strconv.Itoa(ClampBitrate(kbps)) + "k",
		"-application", "audio",
		"-vbr", "on",
		"-compression_level", "10",
		"-frame_duration", "20",
		"-f", "ogg",
		"-loglevel", "warning",
		"pipe:1",
	}
}

// FrameSource yields Opus frames until io.EOF.
type FrameSource interface {
	OpusFrame() ([]byte, error)
	Stop()
}

// Encoder runs one ffmpeg process.
type Encoder struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	packets *ogg.PacketDecoder
	stderr  bytes.Buffer

	skip     int
	stopOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

// NewEncoder starts ffmpeg for streamURL.
func NewEncoder(ffmpegPath, streamURL string, kbps int) (*Encoder, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath, FFmpegArgs(streamURL, kbps)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	e := &Encoder{cmd: cmd, cancel: cancel, skip: 2}
	cmd.Stderr = &e.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	e.packets = ogg.NewPacketDecoder(ogg.NewDecoder(bufio.NewReaderSize(stdout, 16384)))
	return e, nil
}

// OpusFrame returns the next Opus packet. The two Ogg Opus header packets
// are skipped.
func (e *Encoder) OpusFrame() ([]byte, error) {
	for {
		packet, _, err := e.packets.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if werr := e.wait(); werr != nil {
					return nil, werr
				}
				return nil, io.EOF
			}
			return nil, err
		}
		if e.skip > 0 {
			e.skip--
			continue
		}
		return packet, nil
	}
}

// Stop kills ffmpeg.
func (e *Encoder) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.wait()
	})
}

func (e *Encoder) wait() error {
	e.waitOnce.Do(func() {
		if err := e.cmd.Wait(); err != nil {
			msg := bytes.TrimSpace(e.stderr.Bytes())
			if len(msg) > 300 {
				msg = msg[len(msg)-300:]
			}
			e.waitErr = fmt.Errorf("ffmpeg exited: %w: %s", err, msg)
		}
	})
	return e.waitErr
}
