package wescrape

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/vinematch/vinematch/internal/wine"
)

// ErrSelectorTimeout reports that an expected element never appeared.
var ErrSelectorTimeout = errors.New("selector not found")

// Browser opens browsing sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a single tab-like browsing context reused across navigations.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Scroll(ctx context.Context, dy int) error
	// WaitFor blocks until selector matches or timeout elapses, returning
	// ErrSelectorTimeout in the latter case.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) ([]byte, error)
	URL() string
	SaveState(ctx context.Context) error
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// ReviewStore persists scraped reviews.
type ReviewStore interface {
	UpsertReview(ctx context.Context, record wine.ReviewRecord) error
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used to name artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// RobotsPolicy decides whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RetryPolicy decides whether and when to retry a failed detail fetch.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Pauser sleeps for a random duration in [min, max], returning early on
// context cancellation.
type Pauser interface {
	Pause(ctx context.Context, min, max time.Duration) error
}
