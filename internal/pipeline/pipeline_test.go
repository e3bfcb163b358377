package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacht-feed-crawler/internal/clock/system"
	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/publisher/memory"
	memstore "github.com/JakeFAU/yacht-feed-crawler/internal/storage/memory"
	"github.com/JakeFAU/yacht-feed-crawler/internal/storage/mirror"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type stubSearcher struct {
	domains []string
	calls   int
}

func (s *stubSearcher) Run(context.Context, []string) ([]string, error) {
	s.calls++
	return s.domains, nil
}

// stubDiscoverer confirms /feed for every input listed in withFeeds.
type stubDiscoverer struct {
	withFeeds map[string]bool
	seen      []string
	sawState  bool
}

func (d *stubDiscoverer) DiscoverFeeds(ctx context.Context, inputs []crawler.DomainInput) *crawler.FeedMap {
	d.sawState = crawler.RunStateFrom(ctx) != nil
	feeds := crawler.NewDomainMap[[]string]()
	for _, in := range inputs {
		d.seen = append(d.seen, in.Domain)
		if d.withFeeds[in.Domain] {
			feeds.Set(in.Domain, []string{"https://" + in.Domain + "/feed"})
		}
	}
	return feeds
}

type stubEntries struct {
	entries map[string][]crawler.FeedEntry
	calls   int
}

func (e *stubEntries) FetchEntries(_ context.Context, feeds *crawler.FeedMap) *crawler.EntryMap {
	e.calls++
	out := crawler.NewDomainMap[[]crawler.FeedEntry]()
	for _, domain := range feeds.Keys() {
		out.Set(domain, e.entries[domain])
	}
	return out
}

type fakeRecordStore struct {
	mu       sync.Mutex
	written  map[string][]crawler.Record
	writeErr error
	listed   []crawler.Record
}

func (f *fakeRecordStore) ReplaceRun(_ context.Context, runID string, records []crawler.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.written == nil {
		f.written = map[string][]crawler.Record{}
	}
	f.written[runID] = records
	return nil
}

func (f *fakeRecordStore) ListRun(_ context.Context, runID string) ([]crawler.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listed != nil {
		return f.listed, nil
	}
	return f.written[runID], nil
}

func testConfig() Config {
	return Config{
		FeedsPath:        "feeds.json",
		RecordsPath:      "records.json",
		CSVPath:          "exports/yachts.csv",
		XLSXPath:         "exports/yachts.xlsx",
		ReportPath:       "dq_report.html",
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}
}

func yachtEntries() map[string][]crawler.FeedEntry {
	return map[string][]crawler.FeedEntry{
		"boats.example": {
			{Title: "Azzam 180m luxury yacht", Link: "https://boats.example/azzam"},
			{Title: "Sea Cloud", Summary: "A 109.5 m barque"},
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	remote := memstore.NewBlobStore()
	pub := memory.New()
	discoverer := &stubDiscoverer{withFeeds: map[string]bool{"boats.example": true}}
	entries := &stubEntries{entries: yachtEntries()}
	records := &fakeRecordStore{}

	r := New(testConfig(), Deps{
		Discoverer:  discoverer,
		Entries:     entries,
		Store:       store,
		RecordStore: records,
		Mirror:      mirror.New(remote, "runs", nil),
		Publisher:   pub,
		Clock:       system.Fixed{At: fixedNow},
		IDs:         fixedIDs{id: "run-1"},
	}, nil)

	inputs := crawler.DomainInputsFromStrings([]string{"boats.example", "quiet.example"})
	summary, err := r.Run(context.Background(), inputs)
	require.NoError(t, err)

	require.Equal(t, "run-1", summary.RunID)
	require.Equal(t, 2, summary.Domains)
	require.Equal(t, 1, summary.DomainsWithFeeds)
	require.Equal(t, 1, summary.Feeds)
	require.Equal(t, 2, summary.Entries)
	require.Equal(t, 2, summary.Records)
	require.True(t, discoverer.sawState)

	feedsJSON, ctype, ok := store.Object("feeds.json")
	require.True(t, ok)
	require.Equal(t, contentTypeJSON, ctype)
	require.JSONEq(t, `{"boats.example":["https://boats.example/feed"]}`, string(feedsJSON))

	recordsJSON, _, ok := store.Object("records.json")
	require.True(t, ok)
	var got []crawler.Record
	require.NoError(t, json.Unmarshal(recordsJSON, &got))
	require.Len(t, got, 2)
	require.Equal(t, "Azzam 180m luxury yacht", got[0].Name)
	require.InDelta(t, 180.0, *got[0].LengthM, 1e-9)
	require.InDelta(t, 109.5, *got[1].LengthM, 1e-9)

	require.Len(t, records.written["run-1"], 2)

	csv, _, ok := store.Object("exports/yachts.csv")
	require.True(t, ok)
	require.Equal(t, "name,length_m\nAzzam 180m luxury yacht,180\nSea Cloud,109.5\n", string(csv))

	_, _, ok = store.Object("exports/yachts.xlsx")
	require.True(t, ok)
	_, _, ok = store.Object("dq_report.html")
	require.True(t, ok)

	require.Equal(t, []string{
		"runs/run-1/dq_report.html",
		"runs/run-1/exports/yachts.csv",
		"runs/run-1/exports/yachts.xlsx",
		"runs/run-1/feeds.json",
		"runs/run-1/records.json",
	}, remote.Keys())
	require.Len(t, summary.Artifacts, 5)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventRunCompleted, events[0].Name)
	payload, ok := events[0].Payload.(crawler.RunSummary)
	require.True(t, ok)
	require.Equal(t, "run-1", payload.RunID)
	require.Equal(t, fixedNow, payload.FinishedAt)
}

func TestRunNoFeedsFailsRun(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	pub := memory.New()
	entries := &stubEntries{}

	r := New(testConfig(), Deps{
		Discoverer: &stubDiscoverer{},
		Entries:    entries,
		Store:      store,
		Publisher:  pub,
		Clock:      system.Fixed{At: fixedNow},
		IDs:        fixedIDs{id: "run-empty"},
	}, nil)

	summary, err := r.Run(context.Background(), crawler.DomainInputsFromStrings([]string{"quiet.example"}))
	require.ErrorIs(t, err, crawler.ErrNoFeedsDiscovered)
	require.Equal(t, 1, summary.Domains)
	require.Zero(t, summary.Feeds)
	require.Zero(t, entries.calls)
	require.Empty(t, pub.Events())

	feedsJSON, _, ok := store.Object("feeds.json")
	require.True(t, ok)
	require.JSONEq(t, `{}`, string(feedsJSON))
	_, _, ok = store.Object("records.json")
	require.False(t, ok)
}

func TestRunSearchesWhenNoInputs(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Queries = []string{"superyacht news"}
	cfg.Blacklist = []string{"facebook.com"}
	searcher := &stubSearcher{domains: []string{"boats.example", "facebook.com"}}
	discoverer := &stubDiscoverer{withFeeds: map[string]bool{"boats.example": true}}

	r := New(cfg, Deps{
		Searcher:   searcher,
		Discoverer: discoverer,
		Entries:    &stubEntries{entries: yachtEntries()},
		IDs:        fixedIDs{id: "run-search"},
	}, nil)

	summary, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, searcher.calls)
	require.Equal(t, []string{"boats.example"}, discoverer.seen)
	require.Equal(t, 1, summary.Domains)
}

func TestRunSkipsSearchWithInputs(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Queries = []string{"superyacht news"}
	searcher := &stubSearcher{domains: []string{"other.example"}}
	discoverer := &stubDiscoverer{withFeeds: map[string]bool{"boats.example": true}}

	r := New(cfg, Deps{
		Searcher:   searcher,
		Discoverer: discoverer,
		Entries:    &stubEntries{},
		IDs:        fixedIDs{id: "run-2"},
	}, nil)

	_, err := r.Run(context.Background(), crawler.DomainInputsFromStrings([]string{"boats.example"}))
	require.NoError(t, err)
	require.Zero(t, searcher.calls)
	require.Equal(t, []string{"boats.example"}, discoverer.seen)
}

func TestCollectExportsStoredRecords(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	stored := 42.0
	records := &fakeRecordStore{listed: []crawler.Record{{Name: "From store", LengthM: &stored}}}
	r := New(testConfig(), Deps{
		Entries:     &stubEntries{entries: yachtEntries()},
		Store:       store,
		RecordStore: records,
	}, nil)

	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("boats.example", []string{"https://boats.example/feed"})
	out := r.Collect(context.Background(), "run-3", feeds)

	require.Len(t, out.Records, 2)
	csv, _, ok := store.Object("exports/yachts.csv")
	require.True(t, ok)
	require.Equal(t, "name,length_m\nFrom store,42\n", string(csv))
}

func TestCollectFallsBackWhenRecordStoreFails(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	r := New(testConfig(), Deps{
		Entries:     &stubEntries{entries: yachtEntries()},
		Store:       store,
		RecordStore: &fakeRecordStore{writeErr: errors.New("db down")},
	}, nil)

	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("boats.example", []string{"https://boats.example/feed"})
	out := r.Collect(context.Background(), "run-4", feeds)

	require.Len(t, out.Artifacts, 4)
	csv, _, ok := store.Object("exports/yachts.csv")
	require.True(t, ok)
	require.Equal(t, "name,length_m\nAzzam 180m luxury yacht,180\nSea Cloud,109.5\n", string(csv))
	require.True(t, out.Report.OK())
}

func TestCollectEmptyEntriesWritesEmptyOutputs(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	r := New(testConfig(), Deps{Entries: &stubEntries{}, Store: store}, nil)

	feeds := crawler.NewDomainMap[[]string]()
	feeds.Set("boats.example", []string{"https://boats.example/feed"})
	out := r.Collect(context.Background(), "run-5", feeds)

	require.Empty(t, out.Records)
	recordsJSON, _, ok := store.Object("records.json")
	require.True(t, ok)
	require.JSONEq(t, `[]`, string(recordsJSON))
	csv, _, ok := store.Object("exports/yachts.csv")
	require.True(t, ok)
	require.Equal(t, "name,length_m\n", string(csv))
}

func TestDiscoverAttachesRunState(t *testing.T) {
	t.Parallel()

	discoverer := &stubDiscoverer{withFeeds: map[string]bool{"boats.example": true}}
	r := New(Config{}, Deps{Discoverer: discoverer}, nil)

	feeds, err := r.Discover(context.Background(), crawler.DomainInputsFromStrings([]string{"boats.example"}))
	require.NoError(t, err)
	require.Equal(t, 1, feeds.Len())
	require.True(t, discoverer.sawState)
}
