package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single resilient HTTP exchange. Implementations return
// the last response they saw alongside any error.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// HTMLGetter retrieves a page for link mining, escalating to a browser when
// the site challenges plain clients. It never fails: a total failure is an
// empty FetchResponse.
type HTMLGetter interface {
	GetHTML(ctx context.Context, url string) FetchResponse
}

// HeadlessDetector decides whether a plain response needs a browser retry.
type HeadlessDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// FeedFinder is an opaque source of extra feed candidates for a site.
// home is the homepage response already in hand; an empty body makes the
// finder fetch siteURL itself.
type FeedFinder interface {
	FindFeeds(ctx context.Context, siteURL string, home FetchResponse) ([]string, error)
}

// FeedParser fetches and parses a feed document.
type FeedParser interface {
	ParseURL(ctx context.Context, url string) ([]FeedEntry, error)
}

// BlobStore persists artifacts and returns a URI for the stored object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher sends run notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher hashes content (used to fingerprint diagnostics).
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator yields run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
