package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeOllama struct {
	reply     string
	status    int
	down      atomic.Bool
	psCalls   atomic.Int32
	mu        sync.Mutex
	lastModel string
	lastOpts  map[string]any
	lastMsgs  int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/" && (r.Method == http.MethodHead || r.Method == http.MethodGet):
		if f.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "Ollama is running")
	case r.URL.Path == "/api/ps":
		f.psCalls.Add(1)
		f.down.Store(false)
		io.WriteString(w, `{"models":[]}`)
	case r.URL.Path == "/api/tags":
		io.WriteString(w, `{"models":[{"name":"llama3.2:1b"},{"name":"qwen2:0.5b"}]}`)
	case r.URL.Path == "/api/chat":
		var req struct {
			Model    string         `json:"model"`
			Messages []any          `json:"messages"`
			Options  map[string]any `json:"options"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastModel, f.lastOpts, f.lastMsgs = req.Model, req.Options, len(req.Messages)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			io.WriteString(w, `{"error":"model not found"}`)
			return
		}
		resp := map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": f.reply},
			"done":    true,
		}
		json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeOllama) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Model: "llama3.2:1b", Timeout: 5 * time.Second, MaxTokens: 200})
	if err != nil {
		t.Fatal(err)
	}
	c.wakeDelay = 0
	return c
}

func TestChatSuccess(t *testing.T) {
	f := &fakeOllama{reply: "  Why did the form cross the road?  "}
	c := newTestClient(t, f)

	got, err := c.Chat(context.Background(), "sys", "user", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Why did the form cross the road?" {
		t.Errorf("Chat() = %q", got)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastModel != "llama3.2:1b" || f.lastMsgs != 2 {
		t.Errorf("request model=%q messages=%d", f.lastModel, f.lastMsgs)
	}
	if f.lastOpts["num_predict"] != float64(200) || f.lastOpts["temperature"] != 0.9 {
		t.Errorf("options = %v", f.lastOpts)
	}

	st := c.Stats()
	if st.Inflight != 0 || st.LastSuccess.IsZero() || st.LastError != "" {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestChatHTTPErrorRecorded(t *testing.T) {
	f := &fakeOllama{status: http.StatusNotFound}
	c := newTestClient(t, f)

	if _, err := c.Chat(context.Background(), "sys", "user", 1); err == nil {
		t.Fatal("Chat() error = nil")
	}
	st := c.Stats()
	if st.LastError == "" || st.Inflight != 0 {
		t.Errorf("Stats() = %+v, want recorded error", st)
	}
}

func TestChatEmptyReply(t *testing.T) {
	c := newTestClient(t, &fakeOllama{reply: "   "})
	if _, err := c.Chat(context.Background(), "s", "u", 1); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Chat() error = %v, want ErrEmptyResponse", err)
	}
}

func TestNotConfigured(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if c.Configured() {
		t.Error("Configured() = true without base URL")
	}
	if _, err := c.Joke(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Joke() error = %v, want ErrNotConfigured", err)
	}
	d := c.Diagnose(context.Background())
	if d.Reachable || len(d.Log) != 1 {
		t.Errorf("Diagnose() = %+v", d)
	}
}

func TestJokeClampsLongReplies(t *testing.T) {
	c := newTestClient(t, &fakeOllama{reply: strings.Repeat("ha", 1500)})
	got, err := c.Joke(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(got)); n != MaxReplyLength+1 || !strings.HasSuffix(got, "…") {
		t.Errorf("len = %d, suffix ok = %v", n, strings.HasSuffix(got, "…"))
	}
}

func TestDiagnoseReachable(t *testing.T) {
	f := &fakeOllama{}
	c := newTestClient(t, f)

	d := c.Diagnose(context.Background())
	if !d.Reachable {
		t.Fatalf("Reachable = false, log = %v", d.Log)
	}
	if len(d.Models) != 2 || d.Models[0] != "llama3.2:1b" {
		t.Errorf("Models = %v", d.Models)
	}
	if f.psCalls.Load() != 0 {
		t.Error("woke a server that was already up")
	}
}

func TestDiagnoseWakesServer(t *testing.T) {
	f := &fakeOllama{}
	f.down.Store(true)
	c := newTestClient(t, f)

	d := c.Diagnose(context.Background())
	if f.psCalls.Load() != 1 {
		t.Errorf("wake calls = %d, want 1", f.psCalls.Load())
	}
	if !d.Reachable {
		t.Errorf("Reachable = false after wake, log = %v", d.Log)
	}
}

func TestDossierSummary(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := Dossier{
		DisplayName: "Sam",
		Nick:        "Sammy",
		JoinedAt:    now.AddDate(0, 0, -10),
		Roles:       []string{"a", "b", "c", "d", "e", "f"},
		TopRole:     "f",
	}
	want := "handle: Sam; aka Sammy; in server for 10 days; roles: a, b, c, d, e; notable rank: f"
	if got := d.Summary(now); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}

	if got := (Dossier{DisplayName: "Sam", Nick: "Sam"}).Summary(now); got != "handle: Sam" {
		t.Errorf("Summary() = %q, want handle only", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp("short") != "short" {
		t.Error("Clamp changed a short string")
	}
}
