package wescrape

import (
	"context"
	"math/rand/v2"
	"time"
)

// randomPauser sleeps for human-like random intervals.
type randomPauser struct{}

func (randomPauser) Pause(ctx context.Context, min, max time.Duration) error {
	return sleep(ctx, between(min, max))
}

func between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

func randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
