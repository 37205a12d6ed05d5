package wescrape

import (
	"fmt"
	"strings"
)

// DefaultBaseURL is the Wine Enthusiast home page.
const DefaultBaseURL = "https://www.wineenthusiast.com/"

// SearchURL composes a ratings search URL for a one-based page, optionally
// filtered by wine style (e.g. "Red", "Port%252FSherry") and publication year.
// A year of zero means no year filter.
func SearchURL(base string, page int, style string, year int) string {
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	params := []string{"?s=", "search_type=ratings", fmt.Sprintf("page=%d", page), "drink_type=wine"}
	if style != "" {
		params = append(params, "wine_style="+style)
	}
	if year != 0 {
		// The site double-encodes the colon of the pub_date filter.
		params = append(params, fmt.Sprintf("pub_date=%%253A%d", year))
	}
	return base + strings.Join(params, "&")
}
