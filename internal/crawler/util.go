package crawler

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeDomainName turns a domain key into a filesystem-safe name.
func SafeDomainName(host string) string {
	name := strings.ReplaceAll(strings.ToLower(host), ":", "_")
	name = invalidFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "unknown"
	}
	return name
}

// DiagnosticsKey is the storage path of the raw homepage saved for a
// domain with no feeds.
func DiagnosticsKey(host string) string {
	return "raw/" + SafeDomainName(host) + ".html"
}

// Snippet truncates body to at most limit bytes without splitting a rune.
func Snippet(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}

func containsLower(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

var feedContentTypeMarkers = []string{"xml", "rss", "atom"}

// IsFeedContentType reports whether a Content-Type header looks like a feed
// document: any xml/rss/atom marker, or an application/* type.
func IsFeedContentType(contentType string) bool {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return false
	}
	for _, marker := range feedContentTypeMarkers {
		if containsLower(ct, marker) {
			return true
		}
	}
	return strings.HasPrefix(strings.ToLower(ct), "application/")
}
