package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/config"
	"github.com/vinematch/vinematch/internal/wescrape"
	"github.com/vinematch/vinematch/internal/wine"
)

type fakeRunner struct {
	links      []wescrape.LinksOptions
	details    []wescrape.DetailsOptions
	err        error
	linkRows   []wine.Link
	reviewRows []wine.Review
}

func (f *fakeRunner) CollectLinks(_ context.Context, opts wescrape.LinksOptions) ([]wine.Link, error) {
	f.links = append(f.links, opts)
	return f.linkRows, f.err
}

func (f *fakeRunner) ScrapeDetails(_ context.Context, opts wescrape.DetailsOptions) ([]wine.Review, error) {
	f.details = append(f.details, opts)
	return f.reviewRows, f.err
}

type fakeApp struct {
	cfg    config.Config
	runner *fakeRunner
	now    time.Time
	closed int
}

func (a *fakeApp) Config() config.Config { return a.cfg }
func (a *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) Now() time.Time { return a.now }
func (a *fakeApp) Runner() Runner { return a.runner }
func (a *fakeApp) Close(context.Context) error { a.closed++; return nil }

var fixedNow = time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

// useFakeApp replaces the app factory and returns the app every run receives.
func useFakeApp(t *testing.T, runner *fakeRunner) *fakeApp {
	t.Helper()
	fake := &fakeApp{runner: runner, now: fixedNow}
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
	return fake
}

func runWescrape(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := ExecuteWescrape(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestWescrapeLinks(t *testing.T) {
	runner := &fakeRunner{linkRows: []wine.Link{{Name: "a", URL: "u1"}, {Name: "b", URL: "u2"}}}
	fake := useFakeApp(t, runner)

	code, stdout, stderr := runWescrape(t, "links", "--styles", "Red", "White", "--years", "2021", "2022",
		"--max-pages", "5", "--headless", "--out", "links.csv")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Collected 2 links -> links.csv\n", stdout)
	require.Len(t, runner.links, 1)
	assert.Equal(t, wescrape.LinksOptions{
		MaxPages: 5,
		Styles:   []string{"Red", "White"},
		Years:    []int{2021, 2022},
		Out:      "links.csv",
	}, runner.links[0])
	assert.True(t, fake.cfg.Browser.Headless)
	assert.Equal(t, 1, fake.closed)
}

func TestWescrapeLinksDefaults(t *testing.T) {
	runner := &fakeRunner{}
	fake := useFakeApp(t, runner)

	code, stdout, _ := runWescrape(t, "links")
	require.Equal(t, 0, code)
	want := filepath.Join("data/raw/scraped/wineenthusiast", "20240309", wescrape.LinksFile)
	assert.Equal(t, "Collected 0 links -> "+want+"\n", stdout)
	require.Len(t, runner.links, 1)
	assert.Equal(t, 48, runner.links[0].MaxPages)
	assert.Empty(t, runner.links[0].Styles)
	assert.Empty(t, runner.links[0].Years)
	assert.False(t, fake.cfg.Browser.Headless)
}

func TestWescrapeDetails(t *testing.T) {
	runner := &fakeRunner{reviewRows: []wine.Review{{URL: "u1"}}}
	useFakeApp(t, runner)

	code, stdout, stderr := runWescrape(t, "details", "--links-csv", "links.csv", "--checkpoint-every", "10", "--resume", "--out", "info.csv")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Scraped 1 reviews -> info.csv\n", stdout)
	assert.Equal(t, []wescrape.DetailsOptions{{LinksCSV: "links.csv", Out: "info.csv", CheckpointEvery: 10, Resume: true}}, runner.details)

	code, stdout, _ = runWescrape(t, "details", "--links-csv", "links.csv")
	require.Equal(t, 0, code)
	want := filepath.Join("data/raw/scraped/wineenthusiast", "20240309", wescrape.DetailsFile)
	assert.Contains(t, stdout, want)
	assert.Equal(t, 100, runner.details[1].CheckpointEvery)
}

func TestWescrapeErrors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("browser crashed")}
	fake := useFakeApp(t, runner)

	code, _, stderr := runWescrape(t, "links", "--out", "x.csv")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "collect links: browser crashed")
	assert.Equal(t, 1, fake.closed)

	code, _, stderr = runWescrape(t, "details")
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "links-csv")

	code, _, _ = runWescrape(t, "links", "--years", "twenty")
	assert.Equal(t, 2, code)

	code, _, _ = runWescrape(t, "links", "--max-pages", "0")
	assert.Equal(t, 2, code)
}

func TestExpandVariadicFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"none", []string{"links", "--max-pages", "2"}, []string{"links", "--max-pages", "2"}},
		{
			"styles and years",
			[]string{"links", "--styles", "Red", "White", "--years", "2021", "--headless"},
			[]string{"links", "--styles=Red", "--styles=White", "--years=2021", "--headless"},
		},
		{"empty list dropped", []string{"links", "--styles", "--headless"}, []string{"links", "--headless"}},
		{"equals form untouched", []string{"links", "--styles=Red"}, []string{"links", "--styles=Red"}},
		{"terminator", []string{"links", "--", "--styles", "Red"}, []string{"links", "--", "--styles", "Red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, expandVariadicFlags(tt.in, variadicFlags...))
		})
	}
}
