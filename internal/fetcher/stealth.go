package fetcher

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/IshaanNene/ListingScout/internal/config"
)

// Profile is the browser fingerprint one session presents.
type Profile struct {
	UserAgent   string
	Width       int
	Height      int
	UserDataDir string
	Language    string
	Headless    bool
	Stealth     bool
}

// WindowSize returns the launcher flag value, e.g. "1920,1080".
func (p Profile) WindowSize() string {
	return fmt.Sprintf("%d,%d", p.Width, p.Height)
}

var viewports = []struct{ w, h int }{
	{1920, 1080}, {1366, 768}, {1536, 864},
	{1440, 900}, {1280, 720},
}

// profileCounter rotates user agents across sessions of one process.
var profileCounter atomic.Int64

// NewProfile builds the fingerprint for a new session. User agents rotate
// across sessions; the window size comes from config or a common desktop
// viewport.
func NewProfile(cfg config.SessionConfig) Profile {
	p := Profile{
		UserDataDir: cfg.UserDataDir,
		Language:    "ko-KR",
		Headless:    cfg.Headless,
		Stealth:     cfg.Stealth,
	}

	if n := len(cfg.UserAgents); n > 0 {
		idx := profileCounter.Add(1) % int64(n)
		p.UserAgent = cfg.UserAgents[idx]
	} else {
		p.UserAgent = "ListingScout/" + config.Version
	}

	if w, h, ok := parseWindowSize(cfg.WindowSize); ok {
		p.Width, p.Height = w, h
	} else {
		vp := viewports[rand.Intn(len(viewports))]
		p.Width, p.Height = vp.w, vp.h
	}
	return p
}

func parseWindowSize(s string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// applyBrowserHeaders sets the headers a desktop browser sends on a
// top-level navigation, without overriding ones already present.
func (p Profile) applyBrowserHeaders(h http.Header) {
	h.Set("User-Agent", p.UserAgent)
	if h.Get("Accept") == "" {
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	}
	if h.Get("Accept-Language") == "" {
		h.Set("Accept-Language", p.Language+",ko;q=0.9,en-US;q=0.8,en;q=0.7")
	}
	if h.Get("Accept-Encoding") == "" {
		h.Set("Accept-Encoding", "gzip, deflate, br")
	}
	if p.Stealth && h.Get("Sec-Fetch-Dest") == "" {
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
		h.Set("Upgrade-Insecure-Requests", "1")
	}
}
