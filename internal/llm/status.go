package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Diagnostics is the result of probing the LLM server.
type Diagnostics struct {
	Reachable bool
	Log       []string
	Models    []string
	Stats     Stats
}

// Diagnose pings the server, tries to wake it once if it does not answer,
// and lists the installed models when it is reachable.
func (c *Client) Diagnose(ctx context.Context) Diagnostics {
	if c == nil || c.api == nil {
		return Diagnostics{Log: []string{"❌ LLM_BASE_URL is not configured."}}
	}
	d := Diagnostics{Stats: c.Stats()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second+2*c.wakeDelay)
	defer cancel()

	d.Log = append(d.Log, "📡 Pinging the model server…")
	d.Reachable = c.ping(ctx, &d)
	if !d.Reachable {
		c.wake(ctx, &d)
		d.Reachable = c.ping(ctx, &d)
	}
	if d.Reachable {
		d.Models = c.models(ctx, &d)
	}
	return d
}

func (c *Client) ping(ctx context.Context, d *Diagnostics) bool {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.api.Heartbeat(pctx); err != nil {
		d.Log = append(d.Log, fmt.Sprintf("⚠️ No answer: %v.", err))
		return false
	}
	d.Log = append(d.Log, "🟢 Server answered the heartbeat.")
	return true
}

// wake asks the server for its running models, which makes a scaled-down
// deployment start up.
func (c *Client) wake(ctx context.Context, d *Diagnostics) {
	d.Log = append(d.Log, "⚡ Sending a wake-up request…")
	if !sleep(ctx, c.wakeDelay) {
		return
	}
	if _, err := c.api.ListRunning(ctx); err != nil {
		d.Log = append(d.Log, fmt.Sprintf("⚠️ Wake-up request failed: %v.", err))
	} else {
		d.Log = append(d.Log, "🧰 Wake-up request acknowledged.")
	}
	sleep(ctx, c.wakeDelay/2)
}

func (c *Client) models(ctx context.Context, d *Diagnostics) []string {
	res, err := c.api.List(ctx)
	if err != nil {
		d.Log = append(d.Log, fmt.Sprintf("⚠️ Could not list models: %v.", err))
		return nil
	}
	var names []string
	for _, m := range res.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	list := "none"
	if len(names) > 0 {
		list = strings.Join(names, ", ")
	}
	d.Log = append(d.Log, "📦 Installed models: "+list)
	return names
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
