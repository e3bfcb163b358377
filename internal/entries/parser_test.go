package entries

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/yacht-feed-crawler/internal/fetcher/colly"
)

const rssDoc = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Yachts</title>
<item><title>Azzam 180m luxury yacht</title><link>https://example.com/azzam</link>
<description>The longest yacht</description><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><title></title><description></description></item>
<item><description>Only a summary of a 45.5 m sloop</description></item>
</channel></rss>`

const atomDoc = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Atom</title>
<entry><title>Eclipse 162.5m</title><updated>2024-01-01T00:00:00Z</updated><link href="https://example.com/eclipse"/></entry>
</feed>`

func TestParseBytesRSS(t *testing.T) {
	t.Parallel()

	got, err := ParseBytes([]byte(rssDoc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Azzam 180m luxury yacht", got[0].Title)
	require.Equal(t, "https://example.com/azzam", got[0].Link)
	require.Equal(t, "The longest yacht", got[0].Summary)
	require.NotNil(t, got[0].PublishedAt)
	require.Equal(t, "", got[1].Title)
	require.Equal(t, "Only a summary of a 45.5 m sloop", got[1].Summary)
}

func TestParseBytesAtomFallsBackToUpdated(t *testing.T) {
	t.Parallel()

	got, err := ParseBytes([]byte(atomDoc))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "2024-01-01T00:00:00Z", got[0].Published)
	require.Equal(t, "https://example.com/eclipse", got[0].Link)
}

func TestParseBytesErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseBytes(nil)
	require.ErrorIs(t, err, crawler.ErrParse)
	_, err = ParseBytes([]byte("<html><body>not a feed</body></html>"))
	require.ErrorIs(t, err, crawler.ErrParse)
}

func TestIsFeed(t *testing.T) {
	t.Parallel()

	require.True(t, IsFeed([]byte(rssDoc)))
	require.True(t, IsFeed([]byte(atomDoc)))
	require.False(t, IsFeed([]byte("<html></html>")))
	require.False(t, IsFeed(nil))
}

func TestParserParseURL(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssDoc))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second},
		collyfetcher.WithRetryPolicy(crawler.NewExponentialRetryPolicy(crawler.RetryConfig{MaxAttempts: 1})),
	)
	p := NewParser(fetcher)

	got, err := p.ParseURL(context.Background(), srv.URL+"/feed")
	require.NoError(t, err)
	require.Len(t, got, 2)

	_, err = p.ParseURL(context.Background(), srv.URL+"/missing")
	var statusErr *crawler.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
