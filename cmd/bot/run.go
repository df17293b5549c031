package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discbot/internal/commands"
	"discbot/internal/database"
	"discbot/internal/discord"
	"discbot/internal/events"
	"discbot/internal/llm"
	"discbot/internal/metrics"
	"discbot/internal/player"
	"discbot/internal/resolver"
	"discbot/internal/voice"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve commands (default)",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Discord session
	bot, err := discord.New(cfg)
	if err != nil {
		return err
	}

	// 2. Database
	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	// 3. Track resolution
	res, err := newResolver(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	// 4. Player manager
	players := player.NewManager(player.Deps{
		Resolver: res,
		Panels:   discord.NewPanelTransport(bot.Session),
		Settings: db,
		NewVoice: func(guildID string) player.Voice {
			return voice.New(bot.Session, guildID, cfg.FFmpegPath)
		},
		GuildName: func(guildID string) string {
			if g, err := bot.Session.State.Guild(guildID); err == nil {
				return g.Name
			}
			return ""
		},
	}, playerOptions(cfg))

	// 5. LLM client
	client, err := llm.New(llm.Config{
		BaseURL:   cfg.LLMBaseURL,
		Model:     cfg.LLMModel,
		Timeout:   cfg.LLMTimeout(),
		MaxTokens: cfg.LLMMaxTokens,
	})
	if err != nil {
		return err
	}
	if !client.Configured() {
		log.Warn().Msg("LLM backend not configured, joke and roast commands disabled")
	}

	// 6. Event handlers
	handler := commands.NewHandler(players, client)
	handler.LogoURL = cfg.LogoURL
	bot.Session.AddHandler(handler.HandleInteraction)
	events.New(players, db).Register(bot.Session)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	// 7. Start bot
	if err := bot.Start(); err != nil {
		return err
	}
	defer bot.Stop()

	// 8. Register commands
	app := bot.AppID()
	if app == "" {
		if app, err = appID(bot.Session); err != nil {
			log.Warn().Err(err).Msg("Command registration skipped")
		}
	}
	if app != "" {
		if _, err := commands.Sync(bot.Session, app, cfg.GuildID); err != nil {
			log.Warn().Err(err).Msg("Command registration failed")
		}
	}

	// 9. Wait for shutdown signal
	log.Info().Msg("Bot is running. Press Ctrl+C to exit.")
	<-ctx.Done()

	log.Info().Msg("Gracefully shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	players.Shutdown(shutdownCtx)
	return nil
}

func newResolver(ctx context.Context) (*resolver.Resolver, error) {
	cookies, err := resolver.NewCookieJar(cfg.CookiesFromBrowser, cfg.CookiesFile, cfg.CookiesB64)
	if err != nil {
		return nil, fmt.Errorf("invalid yt-dlp cookies: %w", err)
	}
	log.Info().Str("mode", cfg.CredentialMode()).Msg("yt-dlp credentials")

	extractor := resolver.NewYTDLP(resolver.YTDLPConfig{
		POToken:       cfg.POToken,
		SocketTimeout: cfg.YTDLTimeout(),
		MaxRetries:    cfg.YTDLMaxRetries,
		Proxy:         cfg.YTDLProxy,
		Cookies:       cookies,
	})

	var catalog resolver.Catalog
	if sp := resolver.NewSpotify(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret); sp != nil {
		catalog = sp
	} else {
		log.Warn().Msg("Spotify credentials not set, Spotify links disabled")
	}

	return resolver.New(extractor, catalog, cfg.PlaylistMax, cfg.SpotifyMax), nil
}

func playerOptions(c *discord.Config) player.Options {
	opts := player.DefaultOptions()
	opts.IdleTimeout = c.IdleTimeout()
	opts.LastPlayedHold = c.LastPlayedHold()
	opts.RefreshEvery = c.ProgressInterval()
	opts.BumpEvery = c.BumpInterval()
	opts.DeletePanelOnIdle = c.DeletePanelOnIdle
	opts.BitrateCeiling = c.OpusBitrateMax
	opts.ActivityRate = rate.Limit(c.PanelActivityRate)
	opts.LogoURL = c.LogoURL
	return opts
}

// appID resolves the application ID over REST, for commands that run
// without opening the gateway.
func appID(s *discordgo.Session) (string, error) {
	app, err := s.Application("@me")
	if err != nil {
		return "", fmt.Errorf("could not fetch application info: %w", err)
	}
	return app.ID, nil
}
