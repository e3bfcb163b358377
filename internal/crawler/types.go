package crawler

import (
	"net/http"
	"time"
)

// FetchRequest describes a single HTTP retrieval.
type FetchRequest struct {
	Method  string
	URL     string
	Headers http.Header
}

// FetchResponse carries the outcome of a retrieval. An empty Body with a
// zero StatusCode means both the plain and the browser path failed.
type FetchResponse struct {
	URL          string
	StatusCode   int
	ContentType  string
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Empty reports whether the response carries neither a status nor a body.
func (r FetchResponse) Empty() bool {
	return r.StatusCode == 0 && len(r.Body) == 0
}

// HTML returns the body decoded as text.
func (r FetchResponse) HTML() string {
	return string(r.Body)
}

// FeedEntry is one item of a syndication feed, reduced to the fields the
// extractor reads.
type FeedEntry struct {
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Link        string     `json:"link,omitempty"`
	Published   string     `json:"published,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Record is the structured output derived from a FeedEntry.
type Record struct {
	Name      string   `json:"name"`
	LengthM   *float64 `json:"length_m"`
	Link      string   `json:"link,omitempty"`
	Published string   `json:"published,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Domain    string   `json:"domain,omitempty"`
}

// FeedMap maps a domain key to its confirmed feed URLs.
type FeedMap = DomainMap[[]string]

// EntryMap maps a domain key to the entries gathered from its feeds.
type EntryMap = DomainMap[[]FeedEntry]

// RunSummary describes a finished pipeline run.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Domains          int       `json:"domains"`
	DomainsWithFeeds int       `json:"domains_with_feeds"`
	Feeds            int       `json:"feeds"`
	Entries          int       `json:"entries"`
	Records          int       `json:"records"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Artifacts        []string  `json:"artifacts,omitempty"`
}
