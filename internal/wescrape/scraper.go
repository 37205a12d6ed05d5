package wescrape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/metrics"
	"github.com/vinematch/vinematch/internal/wine"
)

// ErrDisallowed reports a URL blocked by robots.txt.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Config tunes scraper behavior.
type Config struct {
	BaseURL          string
	ListingTimeout   time.Duration
	DetailTimeout    time.Duration
	MaxAttempts      int
	MaxQPS           float64
	HumanPauses      bool
	SaveHTML         bool
	ManualChallenge  bool
	ChallengeTimeout time.Duration
	CooldownMin      time.Duration
	CooldownMax      time.Duration
	Topic            string
}

// LinksOptions selects the listing pages to walk.
type LinksOptions struct {
	MaxPages int
	Styles   []string
	Years    []int
	Out      string
}

// DetailsOptions selects the links to scrape and where rows go.
type DetailsOptions struct {
	LinksCSV        string
	Out             string
	CheckpointEvery int
	Resume          bool
}

// Scraper drives a Browser through listing and review pages.
type Scraper struct {
	cfg       Config
	browser   Browser
	logger    *zap.Logger
	clock     Clock
	ids       IDGenerator
	hasher    Hasher
	pauser    Pauser
	robots    RobotsPolicy
	retry     RetryPolicy
	limiter   *hostLimiter
	blobs     BlobStore
	reviews   ReviewStore
	publisher Publisher
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Scraper) { s.logger = l } }

// WithClock sets the clock.
func WithClock(c Clock) Option { return func(s *Scraper) { s.clock = c } }

// WithIDGenerator sets the run ID generator.
func WithIDGenerator(g IDGenerator) Option { return func(s *Scraper) { s.ids = g } }

// WithHasher sets the hasher used to name saved pages.
func WithHasher(h Hasher) Option { return func(s *Scraper) { s.hasher = h } }

// WithPauser replaces the random sleeper.
func WithPauser(p Pauser) Option { return func(s *Scraper) { s.pauser = p } }

// WithRobotsPolicy sets the robots policy.
func WithRobotsPolicy(p RobotsPolicy) Option { return func(s *Scraper) { s.robots = p } }

// WithRetryPolicy overrides the detail retry policy.
func WithRetryPolicy(p RetryPolicy) Option { return func(s *Scraper) { s.retry = p } }

// WithBlobStore enables artifact uploads.
func WithBlobStore(b BlobStore) Option { return func(s *Scraper) { s.blobs = b } }

// WithReviewStore enables review persistence.
func WithReviewStore(r ReviewStore) Option { return func(s *Scraper) { s.reviews = r } }

// WithPublisher enables run summary notifications.
func WithPublisher(p Publisher) Option { return func(s *Scraper) { s.publisher = p } }

// New builds a Scraper on top of browser.
func New(cfg Config, browser Browser, opts ...Option) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = 10 * time.Second
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = 15 * time.Second
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 180 * time.Second
	}
	s := &Scraper{
		cfg:     cfg,
		browser: browser,
		logger:  zap.NewNop(),
		clock:   systemClock{},
		pauser:  randomPauser{},
		robots:  allowAll{},
		retry:   NewExponentialRetryPolicy(cfg.MaxAttempts),
		limiter: newHostLimiter(cfg.MaxQPS),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectLinks walks every style x year x page listing and returns the
// deduplicated review links. On cancellation the links gathered so far are
// returned together with the error.
func (s *Scraper) CollectLinks(ctx context.Context, opts LinksOptions) ([]wine.Link, error) {
	started := s.clock.Now()
	runID := s.newRunID()
	logger := s.logger.With(zap.String("run_id", runID))

	sess, err := s.browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer s.closeSession(sess)

	styles := opts.Styles
	if len(styles) == 0 {
		styles = []string{""}
	}
	years := opts.Years
	if len(years) == 0 {
		years = []int{0}
	}

	var all []wine.Link
	var runErr error
walk:
	for _, style := range styles {
		for _, year := range years {
			for page := 1; page <= opts.MaxPages; page++ {
				pageURL := SearchURL(s.cfg.BaseURL, page, style, year)
				links, err := s.visitListing(ctx, sess, pageURL)
				if err != nil {
					if ctx.Err() != nil {
						runErr = ctx.Err()
						break walk
					}
					logger.Warn("listing failed", zap.String("url", pageURL), zap.Error(err))
					continue
				}
				logger.Debug("listing scraped",
					zap.String("url", pageURL),
					zap.Int("links", len(links)),
				)
				all = append(all, links...)
			}
		}
	}

	links := wine.DedupeLinks(all)
	metrics.AddLinks(len(links))
	if opts.Out != "" {
		if err := wine.WriteLinksCSV(opts.Out, links); err != nil {
			return links, err
		}
		if err := s.exportRun(ctx, RunSummary{
			RunID:     runID,
			Kind:      KindLinks,
			Rows:      len(links),
			Output:    opts.Out,
			StartedAt: started,
		}); err != nil && runErr == nil {
			runErr = err
		}
	}
	return links, runErr
}

func (s *Scraper) visitListing(ctx context.Context, sess Session, pageURL string) ([]wine.Link, error) {
	if err := s.navigate(ctx, sess, pageURL, "listing"); err != nil {
		return nil, err
	}
	if err := s.humanPause(ctx, 400*time.Millisecond, 900*time.Millisecond); err != nil {
		return nil, err
	}
	for i := 0; i < 3; i++ {
		if err := sess.Scroll(ctx, randomInt(400, 900)); err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}
		if err := s.humanPause(ctx, 200*time.Millisecond, 500*time.Millisecond); err != nil {
			return nil, err
		}
	}
	if err := sess.WaitFor(ctx, listingSelector, s.cfg.ListingTimeout); err != nil {
		if errors.Is(err, ErrSelectorTimeout) {
			s.logger.Info("no results on listing; skipping", zap.String("url", pageURL))
			return nil, nil
		}
		return nil, err
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listing html: %w", err)
	}
	links, err := ParseListing(html, currentURL(sess, pageURL))
	if err != nil {
		return nil, err
	}
	if err := s.humanPause(ctx, 600*time.Millisecond, 1400*time.Millisecond); err != nil {
		return links, err
	}
	return links, nil
}

// FetchDetail scrapes a single review page in its own session.
func (s *Scraper) FetchDetail(ctx context.Context, reviewURL string) (wine.Review, error) {
	sess, err := s.browser.Open(ctx)
	if err != nil {
		return wine.Review{}, fmt.Errorf("open browser: %w", err)
	}
	defer s.closeSession(sess)
	return s.fetchDetail(ctx, sess, reviewURL)
}

func (s *Scraper) fetchDetail(ctx context.Context, sess Session, reviewURL string) (wine.Review, error) {
	if err := s.navigate(ctx, sess, reviewURL, "detail"); err != nil {
		return wine.Review{}, err
	}
	if err := sess.WaitFor(ctx, titleSelector, s.cfg.DetailTimeout); err != nil {
		return wine.Review{}, fmt.Errorf("wait for review title: %w", err)
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		return wine.Review{}, fmt.Errorf("read review html: %w", err)
	}
	s.saveHTML(ctx, reviewURL, html)
	return ParseReview(html, reviewURL)
}

func (s *Scraper) fetchWithRetry(ctx context.Context, sess Session, reviewURL string) (wine.Review, error) {
	for attempt := 1; ; attempt++ {
		review, err := s.fetchDetail(ctx, sess, reviewURL)
		if err == nil {
			return review, nil
		}
		if ctx.Err() != nil || !s.retry.ShouldRetry(err, attempt) {
			return wine.Review{}, err
		}
		metrics.IncRetries()
		wait := s.retry.Backoff(attempt)
		s.logger.Info("retrying review",
			zap.String("url", reviewURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := s.pauser.Pause(ctx, wait, wait); err != nil {
			return wine.Review{}, err
		}
	}
}

// ScrapeDetails fetches every link in the links CSV and returns one row per
// link. Failed pages produce rows carrying the error text; the run continues.
// Rows are written to opts.Out every CheckpointEvery links and at the end.
func (s *Scraper) ScrapeDetails(ctx context.Context, opts DetailsOptions) ([]wine.Review, error) {
	started := s.clock.Now()
	runID := s.newRunID()
	logger := s.logger.With(zap.String("run_id", runID))

	links, err := wine.ReadLinksCSV(opts.LinksCSV)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(links))
	for _, l := range links {
		if l.URL != "" {
			urls = append(urls, l.URL)
		}
	}

	var rows []wine.Review
	done := make(map[string]bool)
	if opts.Resume && opts.Out != "" {
		prior, err := wine.ReadReviewsCSV(opts.Out)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("resume: %w", err)
		}
		for _, r := range prior {
			if r.Failed() || done[r.URL] {
				continue
			}
			rows = append(rows, r)
			done[r.URL] = true
		}
		logger.Info("resuming details run", zap.Int("already_scraped", len(rows)))
	}

	sess, err := s.browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer s.closeSession(sess)

	var runErr error
	for i, reviewURL := range urls {
		if done[reviewURL] {
			continue
		}
		review, err := s.fetchWithRetry(ctx, sess, reviewURL)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			logger.Warn("review failed", zap.String("url", reviewURL), zap.Error(err))
			review = wine.Review{URL: reviewURL, Error: err.Error()}
			metrics.ObserveReview("error")
		} else {
			metrics.ObserveReview("ok")
			s.persist(ctx, runID, review)
		}
		rows = append(rows, review)

		if opts.CheckpointEvery > 0 && (i+1)%opts.CheckpointEvery == 0 && opts.Out != "" {
			if err := wine.WriteReviewsCSV(opts.Out, rows); err != nil {
				return rows, fmt.Errorf("checkpoint: %w", err)
			}
			logger.Info("checkpoint written", zap.Int("rows", len(rows)), zap.String("path", opts.Out))
		}
	}

	if opts.Out != "" {
		if err := wine.WriteReviewsCSV(opts.Out, rows); err != nil {
			return rows, err
		}
		failed := 0
		for _, r := range rows {
			if r.Failed() {
				failed++
			}
		}
		if err := s.exportRun(ctx, RunSummary{
			RunID:     runID,
			Kind:      KindDetails,
			Rows:      len(rows),
			Errors:    failed,
			Output:    opts.Out,
			StartedAt: started,
		}); err != nil && runErr == nil {
			runErr = err
		}
	}
	return rows, runErr
}

func (s *Scraper) navigate(ctx context.Context, sess Session, target, kind string) error {
	if !s.robots.Allowed(ctx, target) {
		metrics.ObservePage(target, kind, "disallowed")
		return fmt.Errorf("%s: %w", target, ErrDisallowed)
	}
	if err := s.limiter.Wait(ctx, target); err != nil {
		return err
	}
	if err := sess.Navigate(ctx, target); err != nil {
		metrics.ObservePage(target, kind, "error")
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	metrics.ObservePage(target, kind, "ok")
	return s.handleChallenge(ctx, sess)
}

// handleChallenge waits out a bot check. In manual mode it polls until the
// page no longer looks like a challenge (someone solving it in the visible
// window) or the timeout passes; otherwise, or on timeout, it cools down.
func (s *Scraper) handleChallenge(ctx context.Context, sess Session) error {
	html, err := sess.HTML(ctx)
	if err != nil || !LooksLikeChallenge(html) {
		return nil
	}
	s.logger.Warn("challenge detected", zap.String("url", sess.URL()), zap.Bool("manual", s.cfg.ManualChallenge))

	if s.cfg.ManualChallenge {
		deadline := s.clock.Now().Add(s.cfg.ChallengeTimeout)
		for s.clock.Now().Before(deadline) {
			if err := s.pauser.Pause(ctx, time.Second, 2*time.Second); err != nil {
				return err
			}
			html, err := sess.HTML(ctx)
			if err == nil && !LooksLikeChallenge(html) {
				metrics.ObserveChallenge("cleared")
				s.logger.Info("challenge cleared", zap.String("url", sess.URL()))
				if err := sess.SaveState(ctx); err != nil {
					s.logger.Warn("failed to save browser state", zap.Error(err))
				}
				return nil
			}
		}
		s.logger.Warn("challenge not cleared before timeout", zap.Duration("timeout", s.cfg.ChallengeTimeout))
	}

	metrics.ObserveChallenge("cooldown")
	return s.pauser.Pause(ctx, s.cfg.CooldownMin, s.cfg.CooldownMax)
}

func (s *Scraper) humanPause(ctx context.Context, min, max time.Duration) error {
	if !s.cfg.HumanPauses {
		return ctx.Err()
	}
	return s.pauser.Pause(ctx, min, max)
}

func (s *Scraper) persist(ctx context.Context, runID string, review wine.Review) {
	if s.reviews == nil {
		return
	}
	record := wine.ReviewRecord{RunID: runID, ScrapedAt: s.clock.Now().UTC(), Review: review}
	if err := s.reviews.UpsertReview(ctx, record); err != nil {
		s.logger.Error("failed to persist review", zap.String("url", review.URL), zap.Error(err))
	}
}

func (s *Scraper) saveHTML(ctx context.Context, reviewURL string, html []byte) {
	if !s.cfg.SaveHTML || s.blobs == nil || s.hasher == nil {
		return
	}
	sum, err := s.hasher.Hash([]byte(reviewURL))
	if err != nil {
		s.logger.Warn("failed to hash review url", zap.Error(err))
		return
	}
	name := path.Join("pages", s.clock.Now().UTC().Format("2006-01-02"), sum+".html")
	if _, err := s.blobs.PutObject(ctx, name, "text/html; charset=utf-8", bytesReader(html)); err != nil {
		s.logger.Warn("failed to save review html", zap.String("url", reviewURL), zap.Error(err))
	}
}

func (s *Scraper) newRunID() string {
	if s.ids == nil {
		return s.clock.Now().UTC().Format("20060102T150405")
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("failed to generate run id", zap.Error(err))
		return s.clock.Now().UTC().Format("20060102T150405")
	}
	return id
}

func (s *Scraper) closeSession(sess Session) {
	if err := sess.SaveState(context.Background()); err != nil {
		s.logger.Warn("failed to save browser state", zap.Error(err))
	}
	if err := sess.Close(); err != nil {
		s.logger.Warn("failed to close browser session", zap.Error(err))
	}
}

func currentURL(sess Session, fallback string) string {
	if u := sess.URL(); u != "" {
		return u
	}
	return fallback
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
