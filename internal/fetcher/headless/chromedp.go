// Package headless contains the chromedp-backed browser used for pages that
// need JavaScript and a realistic browser fingerprint.
package headless

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/wescrape"
)

// Config controls the behavior of the chromedp browser.
type Config struct {
	Headless          bool
	UserDataDir       string
	ExecPath          string
	StorageStatePath  string
	UserAgent         string
	Locale            string
	TimezoneID        string
	ViewportMinWidth  int
	ViewportMaxWidth  int
	ViewportMinHeight int
	ViewportMaxHeight int
	NavigationTimeout time.Duration
}

// Browser launches one Chrome process per Open.
type Browser struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp validates cfg and returns a Browser.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.ViewportMinWidth <= 0 || cfg.ViewportMinHeight <= 0 {
		return nil, errors.New("viewport minimums must be positive")
	}
	if cfg.ViewportMaxWidth < cfg.ViewportMinWidth || cfg.ViewportMaxHeight < cfg.ViewportMinHeight {
		return nil, errors.New("viewport maximums must not be below minimums")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}, nil
}

// Open starts Chrome, applies the locale, timezone and viewport overrides and
// restores saved cookies.
func (b *Browser) Open(ctx context.Context) (wescrape.Session, error) {
	width, height := randomViewport(b.cfg)
	opts, err := allocatorOptions(b.cfg, width, height)
	if err != nil {
		return nil, err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:    b.cfg,
		logger: b.logger,
		tab:    tabCtx,
		width:  width,
		height: height,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// The first Run launches the browser; its context must not carry a
	// deadline or Chrome is killed when it fires.
	stop := context.AfterFunc(ctx, s.cancel)
	err = chromedp.Run(tabCtx, s.setupAction())
	stop()
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	b.logger.Debug("browser session opened",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Bool("headless", b.cfg.Headless),
		zap.String("profile", b.cfg.UserDataDir),
	)
	return s, nil
}

// Session is one Chrome tab.
type Session struct {
	cfg    Config
	logger *zap.Logger
	tab    context.Context
	cancel context.CancelFunc
	width  int
	height int

	mu  sync.RWMutex
	url string
}

func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		lang := acceptLanguage(s.cfg.Locale)
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).WithAcceptLanguage(lang).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if s.cfg.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(s.cfg.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
		}
		if lang != "" {
			if err := network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": lang}).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if s.cfg.TimezoneID != "" {
			if err := emulation.SetTimezoneOverride(s.cfg.TimezoneID).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(int64(s.width), int64(s.height), 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return s.restoreCookies(ctx)
	})
}

// run executes actions on the tab bounded by timeout and the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var final string
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&final),
	)
	if err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	s.mu.Lock()
	s.url = final
	s.mu.Unlock()
	return nil
}

// Scroll dispatches a mouse wheel event in the middle of the viewport.
func (s *Session) Scroll(ctx context.Context, dy int) error {
	wheel := input.DispatchMouseEvent(input.MouseWheel, float64(s.width/2), float64(s.height/2)).
		WithDeltaX(0).
		WithDeltaY(float64(dy))
	if err := s.run(ctx, 5*time.Second, wheel); err != nil {
		return fmt.Errorf("chromedp scroll: %w", err)
	}
	return nil
}

// WaitFor waits until selector is visible.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%q after %s: %w", selector, timeout, wescrape.ErrSelectorTimeout)
	}
	return fmt.Errorf("chromedp wait %q: %w", selector, err)
}

// HTML returns the rendered DOM.
func (s *Session) HTML(ctx context.Context) ([]byte, error) {
	var html string
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("chromedp outer html: %w", err)
	}
	return []byte(html), nil
}

// URL returns the location after the last navigation.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// SaveState writes cookies to the storage state file. Persistent profiles
// keep their own state and skip this.
func (s *Session) SaveState(ctx context.Context) error {
	if s.cfg.StorageStatePath == "" || s.cfg.UserDataDir != "" {
		return nil
	}
	if s.tab.Err() != nil {
		return nil
	}
	var cookies []*network.Cookie
	err := s.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	if err := writeStorageState(s.cfg.StorageStatePath, cookiesToState(cookies)); err != nil {
		return err
	}
	s.logger.Debug("storage state saved", zap.String("path", s.cfg.StorageStatePath), zap.Int("cookies", len(cookies)))
	return nil
}

// Close shuts the tab and the Chrome process down.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

func (s *Session) restoreCookies(ctx context.Context) error {
	if s.cfg.StorageStatePath == "" || s.cfg.UserDataDir != "" {
		return nil
	}
	state, err := readStorageState(s.cfg.StorageStatePath)
	if err != nil {
		return err
	}
	params := stateToParams(state)
	if len(params) == 0 {
		return nil
	}
	if err := network.SetCookies(params).Do(ctx); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

func allocatorOptions(cfg Config, width, height int) ([]chromedp.ExecAllocatorOption, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(width, height),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", cfg.Locale))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		dir, err := filepath.Abs(cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve profile dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	return opts, nil
}

func randomViewport(cfg Config) (int, int) {
	return between(cfg.ViewportMinWidth, cfg.ViewportMaxWidth), between(cfg.ViewportMinHeight, cfg.ViewportMaxHeight)
}

func between(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

// acceptLanguage turns "en-US" into "en-US,en;q=0.9".
func acceptLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	base, _, found := strings.Cut(locale, "-")
	if !found || base == "" {
		return locale
	}
	return locale + "," + base + ";q=0.9"
}
