package wescrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vinematch/vinematch/internal/wine"
)

// fakeSite serves scripted HTML per URL. Successive HTML reads of the same
// URL walk through its page list, repeating the last entry.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string][]string
	failures map[string]int
	reads    map[string]int
	visits   []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:    make(map[string][]string),
		failures: make(map[string]int),
		reads:    make(map[string]int),
	}
}

func (f *fakeSite) set(url string, html ...string) { f.pages[url] = html }

func (f *fakeSite) visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visits...)
}

type fakeBrowser struct {
	site     *fakeSite
	opens    int
	sessions []*fakeSession
	openErr  error
}

func (b *fakeBrowser) Open(context.Context) (Session, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opens++
	s := &fakeSession{site: b.site}
	b.sessions = append(b.sessions, s)
	return s, nil
}

type fakeSession struct {
	site    *fakeSite
	current string
	scrolls int
	saves   int
	closed  bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	s.site.visits = append(s.site.visits, url)
	if s.site.failures[url] > 0 {
		s.site.failures[url]--
		return fmt.Errorf("net::ERR_CONNECTION_RESET at %s", url)
	}
	s.current = url
	s.site.reads[url] = 0
	return nil
}

func (s *fakeSession) Scroll(context.Context, int) error {
	s.scrolls++
	return nil
}

func (s *fakeSession) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	html := s.peek()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return ErrSelectorTimeout
	}
	return nil
}

func (s *fakeSession) HTML(context.Context) ([]byte, error) {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	pages := s.site.pages[s.current]
	if len(pages) == 0 {
		return []byte("<html><body></body></html>"), nil
	}
	idx := s.site.reads[s.current]
	if idx >= len(pages) {
		idx = len(pages) - 1
	}
	s.site.reads[s.current]++
	return []byte(pages[idx]), nil
}

func (s *fakeSession) peek() string {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	pages := s.site.pages[s.current]
	if len(pages) == 0 {
		return ""
	}
	idx := s.site.reads[s.current]
	if idx >= len(pages) {
		idx = len(pages) - 1
	}
	return pages[idx]
}

func (s *fakeSession) URL() string { return s.current }

func (s *fakeSession) SaveState(context.Context) error {
	s.saves++
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type pauseCall struct{ min, max time.Duration }

type recordingPauser struct {
	mu    sync.Mutex
	calls []pauseCall
}

func (p *recordingPauser) Pause(ctx context.Context, min, max time.Duration) error {
	p.mu.Lock()
	p.calls = append(p.calls, pauseCall{min, max})
	p.mu.Unlock()
	return ctx.Err()
}

func (p *recordingPauser) last() pauseCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

// steppingClock advances by step on every Now call.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type fakeBlobs struct {
	objects map[string][]byte
	err     error
}

func (b *fakeBlobs) PutObject(_ context.Context, path, _ string, body io.Reader) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[path] = buf.Bytes()
	return "mem://" + path, nil
}

type fakeReviews struct {
	records []wine.ReviewRecord
}

func (r *fakeReviews) UpsertReview(_ context.Context, rec wine.ReviewRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type fakePublisher struct {
	topic    string
	payloads []any
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topic = topic
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

type staticHasher struct{}

func (staticHasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty")
	}
	return fmt.Sprintf("h%d", len(data)), nil
}

func listingHTML(links ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="results">`)
	for _, l := range links {
		fmt.Fprintf(&b, `<div class="ratings-block__info"><h3 class="info__title"><a href="%s">%s</a></h3></div>`, l[1], l[0])
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func reviewHTML(title string, regions ...string) string {
	var anchors strings.Builder
	for _, r := range regions {
		fmt.Fprintf(&anchors, "<a>%s</a>", r)
	}
	regionValue := ""
	if len(regions) > 0 {
		regionValue = regions[0]
	}
	return `<html><body><div id="single-page"><header><div><div><div><div>` +
		`<div><span>Rating</span></div>` +
		`<div><span>Origin</span><span>` + anchors.String() + `</span></div>` +
		`</div></div></div></div></header>` +
		`<h1 class="review-title">` + title + `</h1>` +
		`<div class="score">RATING 92</div>` +
		`<div class="price">PRICE $45</div>` +
		`<div class="region"><span class="value"><a>` + regionValue + `</a></span></div>` +
		`<div class="winery"><span class="value"><a>Acme Cellars</a></span></div>` +
		`<div class="variety"><span class="value"><a>Cabernet Sauvignon</a></span></div>` +
		`<div class="wine-type"><span class="value"><a>Red</a></span></div>` +
		`</div></body></html>`
}

const challengeHTML = `<html><body><h1>Please verify you are a human</h1></body></html>`
