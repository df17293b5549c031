package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"discbot/internal/player"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

// New initializes the database connection and creates the schema.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{conn: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("Database connected")
	return d, nil
}

func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
	CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id TEXT PRIMARY KEY,
		panel_channel_id TEXT NOT NULL DEFAULT ''
	);`)
	if err != nil {
		return err
	}

	// Columns added after the first release.
	_, _ = d.conn.Exec(`ALTER TABLE guild_settings ADD COLUMN repeat_mode TEXT NOT NULL DEFAULT 'off';`)
	_, _ = d.conn.Exec(`ALTER TABLE guild_settings ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';`)

	return nil
}

func (d *DB) Close() error {
	log.Info().Msg("Database connection closing")
	return d.conn.Close()
}

// GuildSettings returns the stored settings for a guild, or the defaults
// when none are stored.
func (d *DB) GuildSettings(ctx context.Context, guildID string) (player.Settings, error) {
	s := player.Settings{Repeat: player.RepeatOff}
	var repeat string
	err := d.conn.QueryRowContext(ctx,
		"SELECT panel_channel_id, repeat_mode FROM guild_settings WHERE guild_id = ?", guildID,
	).Scan(&s.PanelChannelID, &repeat)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if mode, err := player.ParseRepeatMode(repeat); err == nil {
		s.Repeat = mode
	}
	return s, nil
}

// SaveGuildSettings upserts a guild's settings.
func (d *DB) SaveGuildSettings(ctx context.Context, guildID string, s player.Settings) error {
	repeat := s.Repeat
	if repeat == "" {
		repeat = player.RepeatOff
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, panel_channel_id, repeat_mode, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(guild_id) DO UPDATE SET
		panel_channel_id = excluded.panel_channel_id,
		repeat_mode = excluded.repeat_mode,
		updated_at = excluded.updated_at
	`, guildID, s.PanelChannelID, string(repeat))
	return err
}

// ForgetGuild removes a guild's settings, used when the bot leaves it.
func (d *DB) ForgetGuild(ctx context.Context, guildID string) error {
	_, err := d.conn.ExecContext(ctx, "DELETE FROM guild_settings WHERE guild_id = ?", guildID)
	return err
}
