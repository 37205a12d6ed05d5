package wescrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/vinematch/vinematch/internal/wine"
)

const (
	listingSelector = ".ratings-block__info h3.info__title a"
	titleSelector   = ".review-title"
	regionXPath     = `//*[@id="single-page"]/header/div/div/div/div/div[2]/span[2]/a`
)

// ParseListing extracts review links from a search results page. Relative
// hrefs are resolved against pageURL; anchors without a name or href are skipped.
func ParseListing(html []byte, pageURL string) ([]wine.Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	base, _ := url.Parse(pageURL)
	var links []wine.Link
	doc.Find(listingSelector).Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if name == "" || !ok || href == "" {
			return
		}
		links = append(links, wine.Link{Name: name, URL: resolve(base, href)})
	})
	return links, nil
}

// ParseReview extracts the structured fields of a review page.
func ParseReview(html []byte, pageURL string) (wine.Review, error) {
	root, err := htmlquery.Parse(bytes.NewReader(html))
	if err != nil {
		return wine.Review{}, fmt.Errorf("parse review: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	title := firstText(doc, titleSelector)
	if title == "" {
		return wine.Review{}, fmt.Errorf("review title %q: %w", titleSelector, ErrSelectorTimeout)
	}

	nodes, err := htmlquery.QueryAll(root, regionXPath)
	if err != nil {
		return wine.Review{}, fmt.Errorf("query regions: %w", err)
	}
	regions := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if text := strings.TrimSpace(htmlquery.InnerText(n)); text != "" {
			regions = append(regions, text)
		}
	}
	regionValue := firstText(doc, "div.region .value a")

	review := wine.Review{
		Name:     title,
		Score:    stripLabel(firstText(doc, ".score"), "RATING"),
		Price:    stripLabel(firstText(doc, ".price"), "PRICE"),
		Winery:   firstText(doc, "div.winery .value a"),
		Variety:  firstText(doc, "div.variety .value a"),
		WineType: firstText(doc, "div.wine-type .value a"),
		URL:      pageURL,
	}
	review.Region1, review.Region2, review.Region3, review.Country = splitRegions(regions, regionValue)
	return review, nil
}

// splitRegions maps the breadcrumb (most specific first, country last) onto
// the review's region columns. The region value shown in the details box
// only counts as Region 1 when it also appears in the breadcrumb, and is never
// repeated in Region 2 or 3.
func splitRegions(regions []string, regionValue string) (r1, r2, r3, country string) {
	n := len(regions)
	if n > 0 {
		country = regions[n-1]
	}
	if regionValue != "" {
		for _, r := range regions {
			if r == regionValue {
				r1 = regionValue
				break
			}
		}
	}
	if n > 1 && regions[n-2] != regionValue {
		r2 = regions[n-2]
	}
	if n > 2 && regions[n-3] != regionValue {
		r3 = regions[n-3]
	}
	return r1, r2, r3, country
}

func stripLabel(text, label string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(text, label))
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
