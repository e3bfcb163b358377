// Package detector decides when a plain HTTP response must be re-fetched
// through a headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// DefaultChallengeMarkers are case-insensitive body substrings that identify
// anti-bot interstitials.
var DefaultChallengeMarkers = []string{
	"captcha",
	"are you human",
	"cloudflare",
	"cf-browser-verification",
}

// DefaultChallengeStatuses are status codes treated as a challenge.
var DefaultChallengeStatuses = []int{http.StatusForbidden, http.StatusTooManyRequests}

// Challenge promotes responses that look like a bot challenge.
type Challenge struct {
	statuses map[int]struct{}
	markers  [][]byte
}

// NewChallenge builds a detector; empty arguments select the defaults.
func NewChallenge(statuses []int, markers []string) *Challenge {
	if len(statuses) == 0 {
		statuses = DefaultChallengeStatuses
	}
	if len(markers) == 0 {
		markers = DefaultChallengeMarkers
	}
	c := &Challenge{statuses: make(map[int]struct{}, len(statuses))}
	for _, s := range statuses {
		c.statuses[s] = struct{}{}
	}
	for _, m := range markers {
		m = strings.TrimSpace(strings.ToLower(m))
		if m != "" {
			c.markers = append(c.markers, []byte(m))
		}
	}
	return c
}

// ShouldPromote reports whether resp is a challenge page.
func (c *Challenge) ShouldPromote(resp crawler.FetchResponse) bool {
	if _, ok := c.statuses[resp.StatusCode]; ok {
		return true
	}
	if len(resp.Body) == 0 {
		return false
	}
	lower := bytes.ToLower(resp.Body)
	for _, marker := range c.markers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ScriptShell promotes 200 responses whose markup is a client-rendered shell,
// so the browser can surface links injected by JavaScript.
type ScriptShell struct {
	BodyLengthThreshold int
}

// NewScriptShell creates a new detector.
func NewScriptShell(threshold int) *ScriptShell {
	if threshold == 0 {
		threshold = 2048
	}
	return &ScriptShell{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *ScriptShell) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// Any promotes when at least one of its detectors does.
type Any []crawler.HeadlessDetector

// ShouldPromote implements crawler.HeadlessDetector.
func (a Any) ShouldPromote(resp crawler.FetchResponse) bool {
	for _, d := range a {
		if d != nil && d.ShouldPromote(resp) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
