package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"discbot/internal/metrics"

	"github.com/rs/zerolog"
)

// Panel keeps a single live status message per guild. Every operation that
// reads or writes the message location holds mu for its whole duration, so
// concurrent refreshes can never leave two live panels behind.
type Panel struct {
	mu        sync.Mutex
	transport PanelTransport
	channelID string
	messageID string
	lastBump  time.Time

	bumpEvery time.Duration
	lookback  int
	now       func() time.Time
	log       zerolog.Logger
}

// NewPanel creates a panel reconciler. A non-positive bumpEvery disables
// unforced bumps.
func NewPanel(transport PanelTransport, bumpEvery time.Duration, lookback int, logger zerolog.Logger) *Panel {
	if lookback <= 0 {
		lookback = 30
	}
	return &Panel{
		transport: transport,
		bumpEvery: bumpEvery,
		lookback:  lookback,
		now:       time.Now,
		log:       logger,
	}
}

// SetChannel attaches the panel to channelID. Without force an existing
// channel is kept. It reports whether the channel changed.
func (p *Panel) SetChannel(channelID string, force bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channelID == "" || channelID == p.channelID {
		return false
	}
	if p.channelID != "" && !force {
		return false
	}
	p.channelID = channelID
	p.messageID = ""
	return true
}

// Channel returns the attached channel ID.
func (p *Panel) Channel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// MessageID returns the live panel message ID, if any.
func (p *Panel) MessageID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messageID
}

// PostOrUpdate edits the live panel in place, or posts a new one when there
// is none or the edit fails. render is called under the panel lock so the
// content reflects the latest state.
func (p *Panel) PostOrUpdate(ctx context.Context, render func() PanelContent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channelID == "" {
		return nil
	}
	content := render()

	if p.messageID != "" {
		err := p.transport.Edit(ctx, p.channelID, p.messageID, content)
		metrics.PanelOps.WithLabelValues("edit", metrics.Result(err)).Inc()
		if err == nil {
			p.cleanup(ctx, p.messageID)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Debug().Err(err).Str("message", p.messageID).Msg("Panel edit failed, reposting")
		p.messageID = ""
	}

	return p.send(ctx, content)
}

// BumpIfStale re-posts the panel at the bottom of its channel when another
// message has been posted after it. Unforced bumps are limited to one per
// bump interval.
func (p *Panel) BumpIfStale(ctx context.Context, render func() PanelContent, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channelID == "" || p.messageID == "" {
		return nil
	}
	if p.bumpEvery <= 0 && !force {
		return nil
	}

	last, err := p.transport.LastMessageID(ctx, p.channelID)
	if err != nil {
		return err
	}
	if last == "" || last == p.messageID {
		return nil
	}
	now := p.now()
	if !force && now.Sub(p.lastBump) < max(p.bumpEvery, time.Second) {
		return nil
	}

	err = p.transport.Delete(ctx, p.channelID, p.messageID)
	metrics.PanelOps.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil && !errors.Is(err, ErrPanelNotFound) {
		p.log.Debug().Err(err).Msg("Failed to delete panel before bump")
	}
	p.messageID = ""

	if err := p.send(ctx, render()); err != nil {
		return err
	}
	p.lastBump = now
	return nil
}

// Delete removes the live panel message.
func (p *Panel) Delete(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channelID == "" || p.messageID == "" {
		return nil
	}
	err := p.transport.Delete(ctx, p.channelID, p.messageID)
	metrics.PanelOps.WithLabelValues("delete", metrics.Result(err)).Inc()
	p.messageID = ""
	if errors.Is(err, ErrPanelNotFound) {
		return nil
	}
	return err
}

// send posts a new panel. Callers hold mu.
func (p *Panel) send(ctx context.Context, content PanelContent) error {
	id, err := p.transport.Send(ctx, p.channelID, content)
	metrics.PanelOps.WithLabelValues("send", metrics.Result(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrPanelForbidden) {
			p.log.Warn().Str("channel", p.channelID).Msg("Missing permissions to send panel")
			return nil
		}
		return err
	}
	p.messageID = id
	p.cleanup(ctx, id)
	return nil
}

// cleanup deletes every other marked panel in the recent channel history.
// Callers hold mu.
func (p *Panel) cleanup(ctx context.Context, keep string) {
	recent, err := p.transport.Recent(ctx, p.channelID, p.lookback)
	if err != nil {
		p.log.Debug().Err(err).Msg("Panel cleanup skipped")
		return
	}
	for _, m := range recent {
		if !m.Marked || m.ID == keep {
			continue
		}
		err := p.transport.Delete(ctx, p.channelID, m.ID)
		metrics.PanelOps.WithLabelValues("cleanup", metrics.Result(err)).Inc()
		if err != nil && !errors.Is(err, ErrPanelNotFound) {
			p.log.Debug().Err(err).Str("message", m.ID).Msg("Failed to delete stale panel")
		}
	}
}
