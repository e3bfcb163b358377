// Package crawler holds the shared domain model of the yacht feed crawler:
// domains and their discovered feeds, feed entries, extracted records, the
// fetch request/response pair exchanged with fetchers, and the per-run state
// (throttling, retry policy, circuit breakers) that every network-facing
// component consults.
package crawler
