package resolver

import (
	"encoding/base64"
	"os"
	"slices"
	"testing"
)

func TestCookieJarModePrecedence(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("# Netscape HTTP Cookie File\n"))
	tests := []struct {
		browser, file, inline string
		want                  CookieMode
	}{
		{"", "", "", CookiesNone},
		{"", "", b64, CookiesInline},
		{"", "/etc/cookies.txt", b64, CookiesFile},
		{"firefox", "/etc/cookies.txt", b64, CookiesBrowser},
	}
	for _, tt := range tests {
		j, err := NewCookieJar(tt.browser, tt.file, tt.inline)
		if err != nil {
			t.Fatal(err)
		}
		if j.Mode() != tt.want {
			t.Errorf("NewCookieJar(%q, %q, inline) mode = %s, want %s", tt.browser, tt.file, j.Mode(), tt.want)
		}
	}
}

func TestCookieJarInvalidBase64(t *testing.T) {
	if _, err := NewCookieJar("", "", "not base64!"); err == nil {
		t.Error("NewCookieJar() error = nil for invalid base64")
	}
}

func TestCookieJarStaticArgs(t *testing.T) {
	j, _ := NewCookieJar("chrome", "", "")
	args, release, err := j.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if !slices.Equal(args, []string{"--cookies-from-browser", "chrome"}) {
		t.Errorf("args = %v", args)
	}
}

func TestCookieJarInlineLifecycle(t *testing.T) {
	content := "# Netscape HTTP Cookie File\n.youtube.com\tTRUE\t/\tTRUE\t0\tSID\tx\n"
	j, err := NewCookieJar("", "", base64.StdEncoding.EncodeToString([]byte(content)))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	args1, release1, err := j.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	args2, release2, _ := j.Acquire()
	if args1[1] != args2[1] {
		t.Errorf("concurrent holders got different files %q and %q", args1[1], args2[1])
	}
	path := args1[1]
	data, err := os.ReadFile(path)
	if err != nil || string(data) != content {
		t.Fatalf("cookie file = %q, %v", data, err)
	}

	release1()
	release1()
	j.Sweep()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Sweep removed a file still held: %v", err)
	}

	release2()
	j.Sweep()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Sweep left %s behind", path)
	}
	if j.Path() != "" {
		t.Errorf("Path() = %q after sweep", j.Path())
	}
}

func TestNilCookieJar(t *testing.T) {
	var j *CookieJar
	args, release, err := j.Acquire()
	release()
	if err != nil || args != nil {
		t.Errorf("nil jar Acquire() = %v, %v", args, err)
	}
	j.Sweep()
	if err := j.Close(); err != nil {
		t.Error(err)
	}
}
