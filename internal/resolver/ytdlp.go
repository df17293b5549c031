package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"discbot/internal/player"

	"github.com/lrstanley/go-ytdlp"
)

// YTDLPConfig holds extraction settings.
type YTDLPConfig struct {
	POToken       string
	SocketTimeout time.Duration
	MaxRetries    int
	Proxy         string
	Cookies       *CookieJar
}

// YTDLP extracts tracks by shelling out to yt-dlp.
type YTDLP struct {
	cfg YTDLPConfig
	// run executes yt-dlp with the given extra arguments and returns stdout.
	run func(ctx context.Context, cmd *ytdlp.Command, args ...string) (string, error)
}

func NewYTDLP(cfg YTDLPConfig) *YTDLP {
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &YTDLP{cfg: cfg, run: runYTDLP}
}

func runYTDLP(ctx context.Context, cmd *ytdlp.Command, args ...string) (string, error) {
	res, err := cmd.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if y.cfg.Proxy != "" {
		cmd.Proxy(y.cfg.Proxy)
	}
	return cmd
}

func (y *YTDLP) playerClients(webOnly bool) string {
	clients := "android,web"
	if webOnly {
		clients = "web"
	}
	arg := "youtube:player_client=" + clients
	if y.cfg.POToken != "" && !webOnly {
		arg += ";po_token=" + y.cfg.POToken
	}
	return arg
}

func (y *YTDLP) baseArgs(webOnly bool) []string {
	return []string{
		"--extractor-args", y.playerClients(webOnly),
		"--socket-timeout", strconv.Itoa(int(y.cfg.SocketTimeout.Seconds())),
		"--retries", "3",
	}
}

// Extract resolves one page URL or "ytsearch1:" query. When the first pass
// finds no audio stream it retries once with the web client alone.
func (y *YTDLP) Extract(ctx context.Context, target string) (player.Track, error) {
	info, err := y.dump(ctx, target, false)
	if err != nil {
		return player.Track{}, err
	}
	stream := info.pickStream()
	if stream == "" {
		if retry, err := y.dump(ctx, target, true); err == nil {
			stream = retry.pickStream()
		}
	}
	if stream == "" {
		return player.Track{}, ErrNoStream
	}
	return info.track(stream, target), nil
}

func (y *YTDLP) dump(ctx context.Context, target string, webOnly bool) (*videoInfo, error) {
	cookieArgs, release, err := y.cfg.Cookies.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	args := append(y.baseArgs(webOnly), cookieArgs...)
	args = append(args, "--dump-single-json", "--skip-download", target)

	var lastErr error
	for attempt := 0; attempt <= y.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cmd := y.command().Format("bestaudio/best").NoPlaylist()
		out, err := y.run(ctx, cmd, args...)
		if err != nil {
			lastErr = err
			continue
		}
		info, err := parseInfo([]byte(out))
		if err != nil {
			lastErr = err
			continue
		}
		return info, nil
	}
	return nil, fmt.Errorf("yt-dlp failed after %d attempts: %w", y.cfg.MaxRetries+1, lastErr)
}

// Entries lists playlist entries without resolving them.
func (y *YTDLP) Entries(ctx context.Context, playlistURL string, limit int) ([]string, error) {
	cookieArgs, release, err := y.cfg.Cookies.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	cmd := y.command().
		FlatPlaylist().
		Print("%(id)s\t%(url)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit))
	args := append(y.baseArgs(false), cookieArgs...)
	out, err := y.run(ctx, cmd, append(args, playlistURL)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist: %w", err)
	}
	return parseEntries(out, limit), nil
}

// Sweep removes the inline cookie file between tracks.
func (y *YTDLP) Sweep() { y.cfg.Cookies.Sweep() }

func (y *YTDLP) Close() error { return y.cfg.Cookies.Close() }

func parseEntries(out string, limit int) []string {
	var urls []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		id, u, _ := strings.Cut(strings.TrimSpace(line), "\t")
		switch {
		case strings.HasPrefix(u, "http"):
			urls = append(urls, u)
		case id != "" && id != "NA":
			urls = append(urls, "https://www.youtube.com/watch?v="+id)
		default:
			continue
		}
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	return urls
}

type videoFormat struct {
	URL    string  `json:"url"`
	ACodec string  `json:"acodec"`
	ABR    float64 `json:"abr"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
}

type videoInfo struct {
	Title      string        `json:"title"`
	URL        string        `json:"url"`
	WebpageURL string        `json:"webpage_url"`
	Duration   float64       `json:"duration"`
	IsLive     bool          `json:"is_live"`
	Thumbnails []thumbnail   `json:"thumbnails"`
	Formats    []videoFormat `json:"formats"`
	Entries    []videoInfo   `json:"entries"`
}

// parseInfo decodes yt-dlp's JSON dump. Search results arrive wrapped in a
// playlist; the first entry is used.
func parseInfo(data []byte) (*videoInfo, error) {
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid yt-dlp output: %w", err)
	}
	if info.Entries != nil {
		if len(info.Entries) == 0 {
			return nil, ErrNoResults
		}
		entry := info.Entries[0]
		return &entry, nil
	}
	return &info, nil
}

// pickStream prefers the direct URL, then the audio format with the highest
// bitrate.
func (v *videoInfo) pickStream() string {
	if v == nil {
		return ""
	}
	if v.URL != "" {
		return v.URL
	}
	best := -1
	bestABR := math.Inf(-1)
	for i, f := range v.Formats {
		if f.URL == "" || f.ACodec == "" || f.ACodec == "none" {
			continue
		}
		if f.ABR > bestABR {
			best, bestABR = i, f.ABR
		}
	}
	if best < 0 {
		return ""
	}
	return v.Formats[best].URL
}

func (v *videoInfo) bestThumbnail() string {
	url, height := "", -1
	for _, t := range v.Thumbnails {
		if t.URL != "" && t.Height > height {
			url, height = t.URL, t.Height
		}
	}
	return url
}

func (v *videoInfo) track(stream, target string) player.Track {
	t := player.Track{
		Title:     v.Title,
		StreamURL: stream,
		PageURL:   v.WebpageURL,
		Thumbnail: v.bestThumbnail(),
	}
	if t.Title == "" {
		t.Title = "Unknown"
	}
	if t.PageURL == "" && !strings.HasPrefix(target, "ytsearch") {
		t.PageURL = target
	}
	if !v.IsLive && v.Duration > 0 {
		t.Duration = time.Duration(v.Duration * float64(time.Second))
	}
	return t
}
