// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the global logger. format is "console" or "json".
func Setup(level, format string) error {
	return setup(os.Stderr, level, format)
}

func setup(w io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	switch strings.ToLower(format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	case "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (want console or json)", format)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	discordgo.Logger = discordLogger
	return nil
}

// discordLogger routes discordgo's internal messages through zerolog.
func discordLogger(msgL, caller int, format string, a ...any) {
	ev := log.Debug()
	switch msgL {
	case discordgo.LogError:
		ev = log.Error()
	case discordgo.LogWarning:
		ev = log.Warn()
	case discordgo.LogInformational:
		ev = log.Info()
	}
	ev.Str("component", "discordgo").Msgf(format, a...)
}
