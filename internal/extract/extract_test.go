package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

func TestParseEntryScenarioAzzam(t *testing.T) {
	t.Parallel()

	r := ParseEntry(crawler.FeedEntry{Title: "Azzam 180m luxury yacht"})
	require.Equal(t, "Azzam 180m luxury yacht", r.Name)
	require.NotNil(t, r.LengthM)
	require.InDelta(t, 180.0, *r.LengthM, 1e-9)
}

func TestParseLength(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want *float64
	}{
		{name: "decimal with space", text: "Sailing yacht 45.5 M for sale", want: f(45.5)},
		{name: "thousands separator", text: "A 1,200m container ship", want: f(1200)},
		{name: "first match wins", text: "12m tender for a 90m yacht", want: f(12)},
		{name: "any word starting with m", text: "built in 2019 measuring", want: f(2019)},
		{name: "no digits", text: "Motor yacht delivered", want: nil},
		{name: "empty", text: "", want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseLength(tc.text)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.InDelta(t, *tc.want, *got, 1e-9)
		})
	}
}

func TestParseEntryUsesSummaryAndCarriesFields(t *testing.T) {
	t.Parallel()

	r := ParseEntry(crawler.FeedEntry{
		Title:     "  Eclipse  ",
		Summary:   "Length overall 162.5 m",
		Link:      "https://example.com/eclipse",
		Published: "2024-01-01",
	})
	require.Equal(t, "Eclipse", r.Name)
	require.InDelta(t, 162.5, *r.LengthM, 1e-9)
	require.Equal(t, "https://example.com/eclipse", r.Link)
	require.Equal(t, "2024-01-01", r.Published)
	require.Equal(t, "Length overall 162.5 m", r.Summary)
}

func TestParseEntryOmitsAbsentFields(t *testing.T) {
	t.Parallel()

	r := ParseEntry(crawler.FeedEntry{Title: "Untitled"})
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Untitled","length_m":null}`, string(raw))
}

func TestRunPreservesDomainThenEntryOrder(t *testing.T) {
	t.Parallel()

	entries := crawler.NewDomainMap[[]crawler.FeedEntry]()
	entries.Set("b.com", []crawler.FeedEntry{{Title: "B1 30m"}, {Title: "B2"}})
	entries.Set("a.com", []crawler.FeedEntry{{Title: "A1 12.5m"}})
	entries.Set("c.com", []crawler.FeedEntry{})

	got := Run(entries)
	require.Len(t, got, 3)
	require.Equal(t, []string{"B1 30m", "B2", "A1 12.5m"}, []string{got[0].Name, got[1].Name, got[2].Name})
	require.Equal(t, []string{"b.com", "b.com", "a.com"}, []string{got[0].Domain, got[1].Domain, got[2].Domain})
	require.Nil(t, got[1].LengthM)
}

func TestRunEmpty(t *testing.T) {
	t.Parallel()

	got := Run(crawler.NewDomainMap[[]crawler.FeedEntry]())
	require.NotNil(t, got)
	require.Empty(t, got)
}

func f(v float64) *float64 { return &v }
