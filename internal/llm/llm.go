// Package llm talks to an Ollama server for the joke and roast commands
// and keeps the request telemetry shown by /llmstatus.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"discbot/internal/metrics"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxReplyLength keeps generated text inside a single Discord message.
const MaxReplyLength = 1900

var (
	ErrNotConfigured = errors.New("LLM backend not configured")
	ErrEmptyResponse = errors.New("empty response")
)

type Config struct {
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Stats is a snapshot of request telemetry.
type Stats struct {
	Inflight    int
	LastLatency time.Duration
	LastSuccess time.Time
	LastError   string
}

// Client wraps the Ollama API with telemetry.
type Client struct {
	api       *api.Client
	cfg       Config
	wakeDelay time.Duration
	log       zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// New returns a client for cfg. An empty base URL or model yields a client
// whose calls fail with ErrNotConfigured.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	c := &Client{
		cfg:       cfg,
		wakeDelay: 2 * time.Second,
		log:       log.With().Str("component", "llm").Logger(),
	}
	if cfg.BaseURL == "" {
		return c, nil
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_BASE_URL: %w", err)
	}
	c.api = api.NewClient(base, &http.Client{Timeout: cfg.Timeout})
	return c, nil
}

// Configured reports whether a base URL and model are set.
func (c *Client) Configured() bool {
	return c != nil && c.api != nil && c.cfg.Model != ""
}

// Chat sends one system+user exchange and returns the trimmed reply.
func (c *Client) Chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	c.addInflight(1)
	defer c.addInflight(-1)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model: c.cfg.Model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": c.cfg.MaxTokens,
		},
	}

	start := time.Now()
	var b strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	content := strings.TrimSpace(b.String())
	if err == nil && content == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		c.recordError(err)
		metrics.LLMRequests.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Str("model", c.cfg.Model).Msg("LLM chat failed")
		return "", err
	}

	elapsed := time.Since(start)
	c.recordSuccess(elapsed)
	metrics.LLMRequests.WithLabelValues("ok").Inc()
	metrics.LLMLatency.Observe(elapsed.Seconds())
	c.log.Debug().Dur("latency", elapsed).Int("chars", len(content)).Msg("LLM chat completed")
	return content, nil
}

// Stats returns a copy of the request telemetry.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) addInflight(delta int) {
	c.mu.Lock()
	c.stats.Inflight = max(0, c.stats.Inflight+delta)
	c.mu.Unlock()
}

func (c *Client) recordSuccess(d time.Duration) {
	c.mu.Lock()
	c.stats.LastLatency = d
	c.stats.LastSuccess = time.Now().UTC()
	c.stats.LastError = ""
	c.mu.Unlock()
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.stats.LastError = err.Error()
	c.mu.Unlock()
}

// Clamp trims s to MaxReplyLength characters, marking the cut with an
// ellipsis.
func Clamp(s string) string {
	r := []rune(s)
	if len(r) <= MaxReplyLength {
		return s
	}
	return string(r[:MaxReplyLength]) + "…"
}
