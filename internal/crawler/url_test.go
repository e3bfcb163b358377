package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupeFeedURLsStripsQueryAndFragment(t *testing.T) {
	t.Parallel()

	got := DedupeFeedURLs([]string{
		"https://example.com/feed?utm=1",
		"https://example.com/feed",
		"https://EXAMPLE.com/feed#top",
		"https://example.com/atom.xml",
		"%zz",
	})
	require.Equal(t, []string{"https://example.com/feed", "https://example.com/atom.xml"}, got)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/feed.xml":                  "https://example.com/feed.xml",
		"rss":                        "https://example.com/blog/rss",
		"//cdn.example.net/atom.xml": "https://cdn.example.net/atom.xml",
		"http://other.org/feed":      "http://other.org/feed",
		"../index.xml":               "https://example.com/index.xml",
	}
	for href, want := range tests {
		got, err := ResolveURL("https://example.com/blog/", href)
		require.NoError(t, err)
		require.Equal(t, want, got, href)
	}
	_, err := ResolveURL("https://example.com", "  ")
	require.Error(t, err)
}

func TestIsFeedContentType(t *testing.T) {
	t.Parallel()

	require.True(t, IsFeedContentType("application/rss+xml; charset=utf-8"))
	require.True(t, IsFeedContentType("text/xml"))
	require.True(t, IsFeedContentType("application/json"))
	require.False(t, IsFeedContentType("text/html"))
	require.False(t, IsFeedContentType(""))
}

func TestDiagnosticsKeyAndSnippet(t *testing.T) {
	t.Parallel()

	require.Equal(t, "raw/example.com.html", DiagnosticsKey("example.com"))
	require.Equal(t, "raw/localhost_8080.html", DiagnosticsKey("LocalHost:8080"))
	require.Equal(t, "abc", Snippet([]byte("abcdef"), 3))
	require.Equal(t, "a", Snippet([]byte("aé"), 2))
	require.Equal(t, "short", Snippet([]byte("short"), 200))
}
