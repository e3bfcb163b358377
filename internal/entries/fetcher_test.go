package entries

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

type stubParser struct {
	feeds map[string][]crawler.FeedEntry
	fail  map[string]error
	calls []string
}

func (s *stubParser) ParseURL(_ context.Context, url string) ([]crawler.FeedEntry, error) {
	s.calls = append(s.calls, url)
	if err, ok := s.fail[url]; ok {
		return nil, err
	}
	return s.feeds[url], nil
}

func entriesNamed(prefix string, n int) []crawler.FeedEntry {
	out := make([]crawler.FeedEntry, n)
	for i := range out {
		out[i] = crawler.FeedEntry{Title: fmt.Sprintf("%s %d", prefix, i)}
	}
	return out
}

func identity([]string) {}

func TestFetchEntriesRespectsLimitAndStopsEarly(t *testing.T) {
	t.Parallel()

	parser := &stubParser{feeds: map[string][]crawler.FeedEntry{
		"https://a.com/one":   entriesNamed("one", 15),
		"https://a.com/two":   entriesNamed("two", 15),
		"https://a.com/three": entriesNamed("three", 5),
	}}
	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("a.com", []string{"https://a.com/one", "https://a.com/two", "https://a.com/three"})

	got := New(parser, 20, nil, WithShuffle(identity)).FetchEntries(context.Background(), feeds)
	entries, ok := got.Get("a.com")
	require.True(t, ok)
	require.Len(t, entries, 20)
	require.Equal(t, "one 0", entries[0].Title)
	require.Equal(t, "two 4", entries[19].Title)
	require.Equal(t, []string{"https://a.com/one", "https://a.com/two"}, parser.calls, "third feed is never parsed")
}

func TestFetchEntriesSkipsFailedFeedsAndKeepsEmptyDomains(t *testing.T) {
	t.Parallel()

	parser := &stubParser{
		feeds: map[string][]crawler.FeedEntry{"https://b.com/ok": entriesNamed("ok", 2)},
		fail: map[string]error{
			"https://a.com/broken": crawler.ErrParse,
			"https://b.com/broken": errors.New("boom"),
		},
	}
	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("a.com", []string{"https://a.com/broken"})
	feeds.Set("b.com", []string{"https://b.com/broken", "https://b.com/ok"})

	got := New(parser, 0, nil, WithShuffle(identity)).FetchEntries(context.Background(), feeds)
	require.Equal(t, []string{"a.com", "b.com"}, got.Keys())
	a, _ := got.Get("a.com")
	require.NotNil(t, a)
	require.Empty(t, a)
	b, _ := got.Get("b.com")
	require.Len(t, b, 2)
}

func TestFetchEntriesShufflesCopy(t *testing.T) {
	t.Parallel()

	parser := &stubParser{feeds: map[string][]crawler.FeedEntry{}}
	urls := []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}
	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("a.com", urls)

	reverse := func(s []string) {
		for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
			s[i], s[j] = s[j], s[i]
		}
	}
	New(parser, 5, nil, WithShuffle(reverse)).FetchEntries(context.Background(), feeds)
	require.Equal(t, []string{"https://a.com/3", "https://a.com/2", "https://a.com/1"}, parser.calls)
	require.Equal(t, []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}, urls)
}

func TestFetchEntriesCanceledContext(t *testing.T) {
	t.Parallel()

	parser := &stubParser{}
	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("a.com", []string{"https://a.com/feed"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := New(parser, 5, nil).FetchEntries(ctx, feeds)
	a, ok := got.Get("a.com")
	require.True(t, ok)
	require.Empty(t, a)
	require.Empty(t, parser.calls)
}
