package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	jokeSystem = "You write the cold open for a late-night satire show about paperwork, " +
		"committee meetings and surveillance theater. Your humor is sharp, PG-13 and never hateful. " +
		"When asked for a joke you always deliver a new one."
	jokeUser = "Tell one original joke about bloated bureaucracy, forms in triplicate or security theater. " +
		"Keep it short enough for a chat message."

	roastSystem = "You are the roastmaster of a Discord variety night. " +
		"Roasts are playful and built on observable quirks, never hateful or violent. " +
		"You always answer with a roast."
)

// Joke asks the model for a short satirical joke.
func (c *Client) Joke(ctx context.Context) (string, error) {
	out, err := c.Chat(ctx, jokeSystem, jokeUser, 0.9)
	if err != nil {
		return "", err
	}
	return Clamp(out), nil
}

// Dossier is what the roast is allowed to know about its target.
type Dossier struct {
	DisplayName string
	Mention     string
	Nick        string
	JoinedAt    time.Time
	Roles       []string
	TopRole     string
}

// Summary renders the dossier as "; "-separated notes.
func (d Dossier) Summary(now time.Time) string {
	parts := []string{"handle: " + d.DisplayName}
	if d.Nick != "" && d.Nick != d.DisplayName {
		parts = append(parts, "aka "+d.Nick)
	}
	if !d.JoinedAt.IsZero() {
		days := int(now.Sub(d.JoinedAt).Hours() / 24)
		parts = append(parts, fmt.Sprintf("in server for %d days", days))
	}
	roles := d.Roles
	if len(roles) > 5 {
		roles = roles[:5]
	}
	if len(roles) > 0 {
		parts = append(parts, "roles: "+strings.Join(roles, ", "))
	}
	if d.TopRole != "" && !contains(roles, d.TopRole) {
		parts = append(parts, "notable rank: "+d.TopRole)
	}
	return strings.Join(parts, "; ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Roast asks the model for a friendly roast of the dossier's subject.
func (c *Client) Roast(ctx context.Context, d Dossier) (string, error) {
	user := fmt.Sprintf("Deliver a playful roast of %s (%s) like a shoutcaster hyping a teammate. "+
		"Work in these notes: %s. Stay affectionate, under four sentences, friendly rivalry only.",
		d.DisplayName, d.Mention, d.Summary(time.Now()))
	out, err := c.Chat(ctx, roastSystem, user, 1.0)
	if err != nil {
		return "", err
	}
	return Clamp(out), nil
}
