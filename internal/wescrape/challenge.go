package wescrape

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var challengePhrases = []string{
	"unusual activity",
	"verify you are a human",
	"captcha",
}

const challengeFrames = "iframe[src*='captcha'], iframe[src*='challenge']"

// LooksLikeChallenge reports whether the page is a bot check or captcha
// interstitial rather than real content.
func LooksLikeChallenge(html []byte) bool {
	if len(html) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return false
	}
	body := strings.ToLower(doc.Find("body").First().Text())
	for _, phrase := range challengePhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return doc.Find(challengeFrames).Length() > 0
}
