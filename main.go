// Package main hosts the yachtfeeds batch entrypoint.
//
// Architecture overview:
//   - Inputs: domains come from --domains-file (a JSON array of strings or {domain, timestamp} objects),
//     positional args, or, when neither is given and search.queries is set, the Google Custom Search API.
//     Whitelist and blacklist filtering applies to every source.
//   - Discovery: each domain is fetched once through the colly-based resilient client (retries with
//     exponential backoff, Retry-After, per-host rate-limit breakers) and escalated to a chromedp browser when
//     the response looks like a bot challenge. Strategies run in order (link tags, default paths, anchors,
//     feed finder, extension probes) and stop at the first one yielding a confirmed feed. Homepages of domains
//     without feeds are saved under raw/ for inspection.
//   - Collection: up to entries.limit entries per domain are gathered from its feeds in random order; yacht
//     names and lengths in metres are extracted into records.
//   - Outputs: feeds.json, records.json, a CSV and XLSX export, and an HTML data-quality report go to the
//     configured store (local/memory/GCS). Records are optionally replaced per run in Postgres, artifacts are
//     mirrored under <prefix>/<run_id>/, a run.completed message is published, and metrics are pushed to a
//     Pushgateway.
//
// Quick checklist:
//   - Configure env vars with the YACHTFEEDS_ prefix, e.g. YACHTFEEDS_SEARCH_API_KEY, YACHTFEEDS_SEARCH_CX,
//     YACHTFEEDS_HEADLESS_ENABLED=false, YACHTFEEDS_DB_PROVIDER=postgres with YACHTFEEDS_DB_DSN.
//   - Run locally: go run . run --config config.yaml --domains-file domains.json
//   - Exit codes: 0 on success, 2 when no feed was discovered, 1 on any other failure.
package main

import (
	"os"

	"github.com/JakeFAU/yacht-feed-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
