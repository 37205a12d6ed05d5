// Package collyfetcher implements the scraper's Browser over plain HTTP using
// gocolly. It is suited to pages that render server side.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/vinematch/vinematch/internal/wescrape"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// Browser opens HTTP sessions that share one transport and cookie jar.
type Browser struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Browser.
func New(cfg Config) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	// Sessions revisit listing pages on retries; the visited store is shared by clones.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())
	return &Browser{cfg: cfg, baseCollector: c}
}

// Open implements wescrape.Browser.
func (b *Browser) Open(ctx context.Context) (wescrape.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open http session: %w", err)
	}
	return &Session{browser: b}, nil
}

// Session holds the last fetched document.
type Session struct {
	browser *Browser

	mu   sync.RWMutex
	url  string
	body []byte
}

type page struct {
	url    string
	status int
	body   []byte
}

// Navigate fetches url and keeps the response body as the current page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var (
		result   page
		fetchErr error
	)
	collector := s.browser.baseCollector.Clone()
	s.configureCollectorHooks(collector, &result, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return err
	}
	s.mu.Lock()
	s.url = result.url
	s.body = result.body
	s.mu.Unlock()
	return nil
}

func (s *Session) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		if lang := s.browser.cfg.AcceptLanguage; lang != "" {
			r.Headers.Set("Accept-Language", lang)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// Scroll is a no-op; static documents are complete once fetched.
func (s *Session) Scroll(ctx context.Context, _ int) error {
	return ctx.Err()
}

// WaitFor reports whether selector matches the current document. A static
// page cannot change, so the timeout is not waited out.
func (s *Session) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	body := s.body
	s.mu.RUnlock()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%q: %w", selector, wescrape.ErrSelectorTimeout)
	}
	return nil
}

// HTML returns the current document.
func (s *Session) HTML(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.body...), nil
}

// URL returns the final URL of the current document.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// SaveState is a no-op; cookies live in the collector's jar for the process lifetime.
func (s *Session) SaveState(context.Context) error { return nil }

// Close releases nothing; the shared transport outlives sessions.
func (s *Session) Close() error { return nil }

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
