// Package links mines homepage markup for feed candidates.
package links

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
)

// DefaultAnchorTokens are the href substrings that mark an anchor as a
// likely feed link.
var DefaultAnchorTokens = []string{"feed", "rss", "atom"}

var feedTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/feed+json",
}

// Decode converts body to UTF-8 using the charset declared in contentType
// or sniffed from the markup.
func Decode(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return strings.ToValidUTF8(string(body), "")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(body), "")
	}
	return string(decoded)
}

// ExtractFeedLinks returns the absolute hrefs of <link> tags whose rel
// contains "alternate" and whose type names an RSS, Atom or JSON feed, in
// document order.
func ExtractFeedLinks(html, baseURL string) []string {
	doc := parse(html)
	if doc == nil {
		return nil
	}
	var out []string
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if !strings.Contains(rel, "alternate") || !isFeedType(typ) {
			return
		}
		if abs, err := crawler.ResolveURL(baseURL, s.AttrOr("href", "")); err == nil {
			out = append(out, abs)
		}
	})
	return out
}

// ExtractAnchorCandidates returns absolute hrefs of anchors whose href
// contains any token, case-insensitively. Empty tokens select the defaults.
func ExtractAnchorCandidates(html, baseURL string, tokens []string) []string {
	if len(tokens) == 0 {
		tokens = DefaultAnchorTokens
	}
	doc := parse(html)
	if doc == nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		lower := strings.ToLower(href)
		for _, token := range tokens {
			if token == "" || !strings.Contains(lower, strings.ToLower(token)) {
				continue
			}
			if abs, err := crawler.ResolveURL(baseURL, href); err == nil {
				out = append(out, abs)
			}
			return
		}
	})
	return out
}

// CountAnchors returns the number of <a> elements, for diagnostics.
func CountAnchors(html string) int {
	return count(html, "a")
}

// CountLinkTags returns the number of <link> elements, for diagnostics.
func CountLinkTags(html string) int {
	return count(html, "link")
}

func count(html, selector string) int {
	doc := parse(html)
	if doc == nil {
		return 0
	}
	return doc.Find(selector).Length()
}

func isFeedType(typ string) bool {
	if typ == "" {
		return false
	}
	if strings.Contains(typ, "rss") || strings.Contains(typ, "atom") {
		return true
	}
	for _, ft := range feedTypes {
		if typ == ft || strings.HasPrefix(typ, ft+";") {
			return true
		}
	}
	return false
}

func parse(html string) *goquery.Document {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc
}
