package discord

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`
	GuildID      string `env:"GUILD_ID"`
	Database     string `env:"DATABASE" envDefault:"discbot.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"console"`
	MetricsAddr  string `env:"METRICS_ADDR"`
	LogoURL      string `env:"BOT_LOGO_URL"`

	FFmpegPath         string  `env:"FFMPEG_EXE" envDefault:"ffmpeg"`
	PlaylistMax        int     `env:"MUSIC_PLAYLIST_MAX" envDefault:"50"`
	SpotifyMax         int     `env:"MUSIC_SPOTIFY_MAX" envDefault:"100"`
	ProgressSeconds    float64 `env:"MUSIC_PROGRESS_UPDATE_SECONDS" envDefault:"5"`
	DeletePanelOnIdle  bool    `env:"MUSIC_DELETE_PANEL_ON_IDLE" envDefault:"false"`
	PanelBumpSeconds   int     `env:"MUSIC_PANEL_BUMP_SECONDS" envDefault:"45"`
	LastPlayedSeconds  int     `env:"MUSIC_LAST_PLAYED_SECONDS" envDefault:"20"`
	IdleTimeoutSeconds int     `env:"MUSIC_IDLE_TIMEOUT_SECONDS" envDefault:"300"`
	OpusBitrateMax     int     `env:"MUSIC_OPUS_BITRATE_MAX" envDefault:"0"`
	PanelActivityRate  float64 `env:"MUSIC_PANEL_ACTIVITY_RATE" envDefault:"2"`

	POToken            string `env:"YT_PO_TOKEN"`
	YTDLSocketTimeout  int    `env:"YTDL_SOCKET_TIMEOUT" envDefault:"20"`
	YTDLMaxRetries     int    `env:"YTDL_MAX_RETRIES" envDefault:"2"`
	YTDLProxy          string `env:"YOUTUBE_PROXY"`
	CookiesFromBrowser string `env:"YTDLP_COOKIES_FROM_BROWSER"`
	CookiesFile        string `env:"YTDLP_COOKIES_FILE"`
	CookiesB64         string `env:"YTDLP_COOKIES_B64"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	LLMBaseURL        string `env:"LLM_BASE_URL" envDefault:"http://ollama.llm.svc.cluster.local:11434"`
	LLMModel          string `env:"LLM_MODEL" envDefault:"llama3.2:1b"`
	LLMTimeoutSeconds int    `env:"LLM_TIMEOUT_SECONDS" envDefault:"180"`
	LLMMaxTokens      int    `env:"LLM_MAX_TOKENS" envDefault:"200"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LLMBaseURL != "" {
		u, err := url.ParseRequestURI(c.LLMBaseURL)
		if err != nil {
			return fmt.Errorf("invalid LLM_BASE_URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid LLM_BASE_URL scheme: %s (must be http or https)", u.Scheme)
		}
	}
	if c.PlaylistMax <= 0 {
		c.PlaylistMax = 50
	}
	if c.SpotifyMax <= 0 {
		c.SpotifyMax = 100
	}
	if c.IdleTimeoutSeconds <= 0 {
		c.IdleTimeoutSeconds = 300
	}
	if c.PanelBumpSeconds < 0 {
		c.PanelBumpSeconds = 0
	}
	if c.LastPlayedSeconds < 0 {
		c.LastPlayedSeconds = 0
	}
	return nil
}

// CredentialMode reports which yt-dlp cookie source is active.
func (c *Config) CredentialMode() string {
	switch {
	case c.CookiesFromBrowser != "":
		return "browser"
	case c.CookiesFile != "":
		return "file"
	case c.CookiesB64 != "":
		return "inline"
	default:
		return "none"
	}
}

// ProgressInterval is the panel refresh cadence, never below half a second.
func (c *Config) ProgressInterval() time.Duration {
	return max(time.Duration(c.ProgressSeconds*float64(time.Second)), 500*time.Millisecond)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) IdleTimeout() time.Duration    { return seconds(c.IdleTimeoutSeconds) }
func (c *Config) BumpInterval() time.Duration   { return seconds(c.PanelBumpSeconds) }
func (c *Config) LastPlayedHold() time.Duration { return seconds(c.LastPlayedSeconds) }
func (c *Config) YTDLTimeout() time.Duration    { return seconds(c.YTDLSocketTimeout) }
func (c *Config) LLMTimeout() time.Duration     { return seconds(c.LLMTimeoutSeconds) }
