// Package main hosts the Wine Enthusiast scraper entrypoint.
//
// Architecture overview:
//   - links: walks the ratings search for every style x year x page, waits for the listing
//     selector, and writes the deduplicated (Wine Name, URL) pairs to CSV.
//   - details: reads a links CSV and scrapes each review page through one browser session,
//     checkpointing rows every N links and recording failures as error rows.
//   - Engines: chromedp drives a real Chrome (persistent profile or cookie storage state) and
//     a colly engine fetches static HTML. Both sit behind wescrape.Browser.
//   - Fanout: the finished CSV is optionally uploaded to the configured blob store (local, memory
//     or GCS), reviews are upserted into Postgres when a DSN is set, and a run summary is
//     published to Pub/Sub. Prometheus metrics are served when metrics.listen_addr is set.
//
// Run locally: go run ./cmd/wescrape links --styles Red White --years 2022 --max-pages 2
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vinematch/vinematch/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.ExecuteWescrape(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
