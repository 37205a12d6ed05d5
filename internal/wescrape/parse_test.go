package wescrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinematch/vinematch/internal/wine"
)

func TestSearchURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		page  int
		style string
		year  int
		want  string
	}{
		{"plain", 1, "", 0, "https://www.wineenthusiast.com/?s=&search_type=ratings&page=1&drink_type=wine"},
		{"style", 3, "Red", 0, "https://www.wineenthusiast.com/?s=&search_type=ratings&page=3&drink_type=wine&wine_style=Red"},
		{"year", 2, "", 2021, "https://www.wineenthusiast.com/?s=&search_type=ratings&page=2&drink_type=wine&pub_date=%253A2021"},
		{"both", 1, "White", 2022, "https://www.wineenthusiast.com/?s=&search_type=ratings&page=1&drink_type=wine&wine_style=White&pub_date=%253A2022"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SearchURL("", tt.page, tt.style, tt.year))
		})
	}

	assert.Equal(t, "http://local.test/?s=&search_type=ratings&page=1&drink_type=wine", SearchURL("http://local.test", 1, "", 0))
}

func TestParseListing(t *testing.T) {
	html := listingHTML(
		[2]string{"Acme 2019 Cabernet", "/reviews/acme-2019"},
		[2]string{"", "/reviews/no-name"},
		[2]string{"Bolt 2020 Merlot", "https://other.test/reviews/bolt"},
	) + `<div class="ratings-block__info"><h3 class="info__title"><a>No Href</a></h3></div>`

	links, err := ParseListing([]byte(html), "https://we.test/?s=&page=1")
	require.NoError(t, err)
	assert.Equal(t, []wine.Link{
		{Name: "Acme 2019 Cabernet", URL: "https://we.test/reviews/acme-2019"},
		{Name: "Bolt 2020 Merlot", URL: "https://other.test/reviews/bolt"},
	}, links)
}

func TestParseReview(t *testing.T) {
	html := reviewHTML("Acme 2019 Cabernet Sauvignon (Napa Valley)", "Napa Valley", "California", "US")

	review, err := ParseReview([]byte(html), "https://we.test/reviews/acme")
	require.NoError(t, err)
	assert.Equal(t, wine.Review{
		Name:     "Acme 2019 Cabernet Sauvignon (Napa Valley)",
		Region1:  "Napa Valley",
		Region2:  "California",
		Country:  "US",
		Score:    "92",
		Price:    "$45",
		Winery:   "Acme Cellars",
		Variety:  "Cabernet Sauvignon",
		WineType: "Red",
		URL:      "https://we.test/reviews/acme",
	}, review)
}

func TestParseReviewRequiresTitle(t *testing.T) {
	_, err := ParseReview([]byte(`<html><body><div class="score">RATING 90</div></body></html>`), "u")
	require.ErrorIs(t, err, ErrSelectorTimeout)
}

func TestSplitRegions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		regions []string
		value   string
		want    [4]string
	}{
		{"empty", nil, "", [4]string{}},
		{"country only", []string{"France"}, "", [4]string{"", "", "", "France"}},
		{"value in list", []string{"Pauillac", "Bordeaux", "France"}, "Pauillac", [4]string{"Pauillac", "Bordeaux", "", "France"}},
		{"value not in list", []string{"Mosel", "Germany"}, "Elsewhere", [4]string{"", "Mosel", "", "Germany"}},
		{"four levels", []string{"Oakville", "Napa Valley", "California", "US"}, "Oakville", [4]string{"Oakville", "California", "Napa Valley", "US"}},
		{"value equals second to last", []string{"Napa", "California", "US"}, "California", [4]string{"California", "", "Napa", "US"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r1, r2, r3, country := splitRegions(tt.regions, tt.value)
			assert.Equal(t, tt.want, [4]string{r1, r2, r3, country})
		})
	}
}

func TestLooksLikeChallenge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want bool
	}{
		{"empty", "", false},
		{"review", reviewHTML("Fine Wine", "US"), false},
		{"human check", challengeHTML, true},
		{"unusual activity", `<html><body><p>We detected Unusual Activity from your network.</p></body></html>`, true},
		{"captcha frame", `<html><body><iframe src="https://hcaptcha.example/frame"></iframe></body></html>`, true},
		{"challenge frame", `<html><body><iframe src="/cdn-cgi/challenge-platform"></iframe></body></html>`, true},
		{"other frame", `<html><body><iframe src="https://video.example/embed"></iframe></body></html>`, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LooksLikeChallenge([]byte(tt.html)))
		})
	}
}
