package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := setup(&buf, "warn", "json"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("hidden")
	log.Warn().Str("component", "player").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output %q is not one JSON line: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["component"] != "player" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetupRejectsBadValues(t *testing.T) {
	var buf bytes.Buffer
	if err := setup(&buf, "loud", "json"); err == nil {
		t.Error("setup() accepted level loud")
	}
	if err := setup(&buf, "info", "xml"); err == nil {
		t.Error("setup() accepted format xml")
	}
}
