package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinematch/vinematch/internal/wescrape"
)

func TestSessionNavigateAndWaitFor(t *testing.T) {
	var gotLang, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1 class="review-title">Acme</h1></body></html>`))
	}))
	defer srv.Close()

	b := New(Config{UserAgent: "vinematch-test", AcceptLanguage: "en-US,en;q=0.9", Timeout: time.Second})
	sess, err := b.Open(context.Background())
	require.NoError(t, err)
	defer func() { require.NoError(t, sess.Close()) }()

	ctx := context.Background()
	require.NoError(t, sess.Navigate(ctx, srv.URL+"/reviews/acme"))
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
	assert.Equal(t, "vinematch-test", gotUA)
	assert.Equal(t, srv.URL+"/reviews/acme", sess.URL())

	require.NoError(t, sess.WaitFor(ctx, ".review-title", time.Second))
	err = sess.WaitFor(ctx, ".missing", time.Second)
	require.ErrorIs(t, err, wescrape.ErrSelectorTimeout)

	html, err := sess.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Acme")

	// Revisiting the same URL is allowed.
	require.NoError(t, sess.Navigate(ctx, srv.URL+"/reviews/acme"))
	require.NoError(t, sess.Scroll(ctx, 500))
	require.NoError(t, sess.SaveState(ctx))
}

func TestSessionNavigateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sess, err := New(Config{}).Open(context.Background())
	require.NoError(t, err)
	err = sess.Navigate(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestSessionNavigateCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	sess, err := New(Config{Timeout: 5 * time.Second}).Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = sess.Navigate(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOpenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Open(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	b := New(Config{AcceptLanguage: "fr-FR"})
	s := &Session{browser: b}
	var result page
	var fetchErr error

	hooks := &stubHooks{}
	s.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "fr-FR", collyReq.Headers.Get("Accept-Language"))

	u, _ := url.Parse("https://we.test/r/1")
	hooks.onResponse(&colly.Response{StatusCode: 200, Body: []byte("ok"), Request: &colly.Request{URL: u}})
	assert.Equal(t, "https://we.test/r/1", result.url)
	assert.Equal(t, []byte("ok"), result.body)

	hooks.onError(&colly.Response{StatusCode: 429}, errors.New("Too Many Requests"))
	require.Error(t, fetchErr)
	assert.Contains(t, fetchErr.Error(), "status 429")
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
