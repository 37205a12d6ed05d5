// Package wine defines the records produced by the Wine Enthusiast scraper
// and their CSV layouts.
package wine

import "time"

// Link is a review discovered on a search listing page.
type Link struct {
	Name string
	URL  string
}

// Review holds the structured fields parsed from a single review page.
// Empty strings stand for values the page did not provide.
type Review struct {
	Name     string
	Region1  string
	Region2  string
	Region3  string
	Country  string
	Score    string
	Price    string
	Winery   string
	Variety  string
	WineType string
	URL      string
	// Error is set instead of the fields above when the page could not be scraped.
	Error string
}

// Failed reports whether the row records a scrape failure.
func (r Review) Failed() bool {
	return r.Error != ""
}

// ReviewRecord is what gets persisted for each successfully scraped review.
type ReviewRecord struct {
	RunID     string
	ScrapedAt time.Time
	Review    Review
}

// LinkColumns is the header of the links CSV.
var LinkColumns = []string{"Wine Name", "URL"}

// ReviewColumns is the header of the details CSV.
var ReviewColumns = []string{
	"Wine Name",
	"Region 1",
	"Region 2",
	"Region 3",
	"Country",
	"Score",
	"Price",
	"Winery",
	"Variety",
	"Wine Type",
	"URL",
	"error",
}

func (r Review) row() []string {
	return []string{
		r.Name,
		r.Region1,
		r.Region2,
		r.Region3,
		r.Country,
		r.Score,
		r.Price,
		r.Winery,
		r.Variety,
		r.WineType,
		r.URL,
		r.Error,
	}
}

// DedupeLinks drops repeated URLs, keeping the first occurrence.
func DedupeLinks(links []Link) []Link {
	seen := make(map[string]struct{}, len(links))
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}
