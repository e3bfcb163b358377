// Package extract turns feed entries into yacht records.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/yacht-feed-crawler/internal/crawler"
	"github.com/JakeFAU/yacht-feed-crawler/internal/metrics"
)

// lengthPattern matches a number followed by optional space and "m".
var lengthPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*m`)

// ParseLength returns the first metre length mentioned in text, ignoring
// thousands separators, or nil.
func ParseLength(text string) *float64 {
	m := lengthPattern.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseEntry builds the record for one entry. The length is searched across
// the title and summary.
func ParseEntry(entry crawler.FeedEntry) crawler.Record {
	name := strings.TrimSpace(entry.Title)
	return crawler.Record{
		Name:      name,
		LengthM:   ParseLength(name + " " + entry.Summary),
		Link:      entry.Link,
		Published: entry.Published,
		Summary:   entry.Summary,
	}
}

// Run flattens entries into records, domain by domain in map order and
// entry by entry within a domain.
func Run(entries *crawler.EntryMap) []crawler.Record {
	records := make([]crawler.Record, 0)
	entries.Each(func(domain string, items []crawler.FeedEntry) {
		for _, item := range items {
			r := ParseEntry(item)
			r.Domain = domain
			metrics.ObserveRecord(r.LengthM != nil)
			records = append(records, r)
		}
	})
	return records
}
