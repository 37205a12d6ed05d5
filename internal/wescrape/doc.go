// Package wescrape implements the two-phase Wine Enthusiast scraper: link
// collection from search listings, then detail scraping of each review page.
// Browsing is delegated to a Browser so the same pipeline runs against a real
// Chrome instance or a plain HTTP collector.
package wescrape
