package resolver

import (
	"encoding/base64"
	"fmt"
	"os"
	"sync"
)

// CookieMode is where yt-dlp credentials come from.
type CookieMode string

const (
	CookiesNone    CookieMode = "none"
	CookiesBrowser CookieMode = "browser"
	CookiesFile    CookieMode = "file"
	CookiesInline  CookieMode = "inline"
)

// CookieJar hands yt-dlp its credential arguments. Inline (base64)
// credentials are decoded into a private temp file that is shared by
// concurrent extractions and removed by Sweep once nobody holds it.
type CookieJar struct {
	mode    CookieMode
	browser string
	file    string
	inline  []byte

	mu   sync.Mutex
	path string
	refs int
}

// NewCookieJar picks a mode from the configured sources: a browser store
// wins over a file, which wins over inline data.
func NewCookieJar(browser, file, b64 string) (*CookieJar, error) {
	j := &CookieJar{mode: CookiesNone, browser: browser, file: file}
	switch {
	case browser != "":
		j.mode = CookiesBrowser
	case file != "":
		j.mode = CookiesFile
	case b64 != "":
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("invalid YTDLP_COOKIES_B64: %w", err)
		}
		j.mode = CookiesInline
		j.inline = data
	}
	return j, nil
}

func (j *CookieJar) Mode() CookieMode {
	if j == nil {
		return CookiesNone
	}
	return j.mode
}

// Acquire returns the yt-dlp arguments for the configured credentials and a
// release func that must be called when the extraction is done.
func (j *CookieJar) Acquire() ([]string, func(), error) {
	noop := func() {}
	if j == nil {
		return nil, noop, nil
	}
	switch j.mode {
	case CookiesBrowser:
		return []string{"--cookies-from-browser", j.browser}, noop, nil
	case CookiesFile:
		return []string{"--cookies", j.file}, noop, nil
	case CookiesInline:
	default:
		return nil, noop, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.path == "" {
		f, err := os.CreateTemp("", "yt_cookies_*.txt")
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create cookie file: %w", err)
		}
		if _, err := f.Write(j.inline); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, noop, fmt.Errorf("failed to write cookie file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return nil, noop, fmt.Errorf("failed to write cookie file: %w", err)
		}
		j.path = f.Name()
	}
	j.refs++
	path := j.path

	var once sync.Once
	release := func() {
		once.Do(func() {
			j.mu.Lock()
			j.refs--
			j.mu.Unlock()
		})
	}
	return []string{"--cookies", path}, release, nil
}

// Path returns the current temp file, if one exists.
func (j *CookieJar) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.path
}

// Sweep removes the temp file when no extraction holds it.
func (j *CookieJar) Sweep() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.refs == 0 {
		j.removeLocked()
	}
}

// Close removes the temp file unconditionally.
func (j *CookieJar) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.removeLocked()
}

func (j *CookieJar) removeLocked() error {
	if j.path == "" {
		return nil
	}
	err := os.Remove(j.path)
	j.path = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
