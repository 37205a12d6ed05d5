// Package main is the vinematch task runner entrypoint.
//
// vinematch replaces the project's Makefile: it exposes setup, quality and
// scraping targets, composes the scraper flags from PAGES, STYLES, YEARS,
// HEADLESS, CHECKPOINT, LINKS and OUT, and exits with the code of the first
// failing command.
//
//	vinematch setup-dev
//	vinematch lint typecheck test
//	vinematch scrape-links STYLES="Red White" YEARS="2021 2022" PAGES=5 HEADLESS=1
//	vinematch scrape-details LINKS=data/raw/scraped/wineenthusiast/20240101/wine_links.csv
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
	code := cmd.ExecuteVinematch(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
