// Package feedfinder guesses feed locations for a site the way classic
// feed autodiscovery libraries do: check the page itself, its link and
// anchor tags, then a handful of conventional file names.
package feedfinder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/entries"
	"github.com/JakeFAU/yacht-feed-crawler/internal/links"
)

const defaultMaxChecks = 25

var (
	feedLinkTypes = []string{
		"application/rss+xml",
		"text/xml",
		"application/atom+xml",
		"application/x.atom+xml",
		"application/x-atom+xml",
		"application/feed+json",
	}
	feedSuffixes = []string{".rss", ".rdf", ".xml", ".atom"}
	feedHints    = []string{"rss", "rdf", "xml", "atom", "feed"}
	guesses      = []string{"atom.xml", "index.atom", "index.rdf", "rss.xml", "index.xml", "index.rss"}
)

// Heuristic implements crawler.FeedFinder over a crawler.Fetcher.
type Heuristic struct {
	fetcher   crawler.Fetcher
	maxChecks int
	logger    *zap.Logger
}

// New returns a Heuristic that confirms candidates by downloading them.
// maxChecks bounds how many candidate documents a single lookup may fetch.
func New(fetcher crawler.Fetcher, maxChecks int, logger *zap.Logger) *Heuristic {
	if maxChecks <= 0 {
		maxChecks = defaultMaxChecks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heuristic{fetcher: fetcher, maxChecks: maxChecks, logger: logger.Named("feedfinder")}
}

type lookup struct {
	h       *Heuristic
	checked map[string]bool
	budget  int
}

// FindFeeds returns confirmed feed URLs for siteURL, best match first. The
// homepage is only downloaded when home carries no body.
func (h *Heuristic) FindFeeds(ctx context.Context, siteURL string, home crawler.FetchResponse) ([]string, error) {
	l := &lookup{h: h, checked: map[string]bool{}, budget: h.maxChecks}

	resp := home
	if len(resp.Body) == 0 {
		var err error
		resp, err = h.fetcher.Fetch(ctx, crawler.FetchRequest{Method: http.MethodGet, URL: siteURL})
		if err != nil {
			return nil, err
		}
	}
	if entries.IsFeed(resp.Body) {
		return []string{siteURL}, nil
	}
	base := siteURL
	if resp.URL != "" {
		base = resp.URL
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(links.Decode(resp.Body, resp.ContentType)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrParse, err)
	}

	found := l.confirm(ctx, linkCandidates(doc, base))
	if len(found) > 0 {
		return rank(found), nil
	}

	local, remote := anchorCandidates(doc, base)
	found = l.confirm(ctx, local)
	if len(found) > 0 {
		return rank(found), nil
	}
	found = l.confirm(ctx, remote)
	if len(found) > 0 {
		return rank(found), nil
	}

	guessed := make([]string, 0, len(guesses))
	for _, name := range guesses {
		if ref, err := crawler.ResolveURL(base, "/"+name); err == nil {
			guessed = append(guessed, ref)
		}
	}
	return rank(l.confirm(ctx, guessed)), nil
}

func (l *lookup) confirm(ctx context.Context, candidates []string) []string {
	var found []string
	for _, candidate := range candidates {
		if l.checked[candidate] {
			continue
		}
		if l.budget <= 0 || ctx.Err() != nil {
			break
		}
		l.checked[candidate] = true
		l.budget--
		resp, err := l.h.fetcher.Fetch(ctx, crawler.FetchRequest{Method: http.MethodGet, URL: candidate})
		if err != nil || resp.StatusCode >= http.StatusBadRequest {
			l.h.logger.Debug("Candidate rejected", zap.String("url", candidate), zap.Int("status", resp.StatusCode), zap.Error(err))
			continue
		}
		if entries.IsFeed(resp.Body) {
			found = append(found, candidate)
		}
	}
	return found
}

func linkCandidates(doc *goquery.Document, base string) []string {
	var out []string
	doc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if !slices.Contains(feedLinkTypes, typ) {
			return
		}
		if ref, err := crawler.ResolveURL(base, s.AttrOr("href", "")); err == nil {
			out = append(out, ref)
		}
	})
	return out
}

func anchorCandidates(doc *goquery.Document, base string) (local, remote []string) {
	baseHost := crawler.HostOf(base)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		ref, err := crawler.ResolveURL(base, s.AttrOr("href", ""))
		if err != nil {
			return
		}
		u, err := url.Parse(ref)
		if err != nil {
			return
		}
		lowerPath := strings.ToLower(u.Path)
		if strings.EqualFold(u.Host, baseHost) {
			if hasAnySuffix(lowerPath, feedSuffixes) {
				local = append(local, ref)
			}
			return
		}
		if containsAny(strings.ToLower(ref), feedHints) {
			remote = append(remote, ref)
		}
	})
	return local, remote
}

// rank orders feeds so that comment feeds sink and conventional names rise.
func rank(urls []string) []string {
	score := func(u string) int {
		lower := strings.ToLower(u)
		s := 0
		if strings.Contains(lower, "comments") {
			s -= 2
		}
		if strings.Contains(lower, "georss") {
			s--
		}
		for _, hint := range []string{"atom", "rss", ".rdf", "rdf", "xml", "feed"} {
			if strings.Contains(lower, hint) {
				s++
				break
			}
		}
		return s
	}
	out := append([]string(nil), urls...)
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
