package fetcher

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newFakeThrottle(interval time.Duration) (*Throttle, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 13, 22, 30, 0, 0, time.UTC)}
	th := NewThrottle(interval)
	th.now = clock.Now
	th.sleep = clock.Sleep
	return th, clock
}

// WHY: the provider bans clients that exceed one request per second, so every
// request after the first must wait out the remainder of the interval.
func TestThrottle_Wait(t *testing.T) {
	t.Run("first request does not wait", func(t *testing.T) {
		th, clock := newFakeThrottle(time.Second)
		if err := th.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(clock.sleeps) != 0 {
			t.Errorf("expected no sleep, got %v", clock.sleeps)
		}
	})

	t.Run("back-to-back requests wait for the remainder", func(t *testing.T) {
		th, clock := newFakeThrottle(time.Second)
		_ = th.Wait(context.Background())
		clock.now = clock.now.Add(300 * time.Millisecond)
		_ = th.Wait(context.Background())

		if len(clock.sleeps) != 1 || clock.sleeps[0] != 700*time.Millisecond {
			t.Errorf("expected one 700ms sleep, got %v", clock.sleeps)
		}
	})

	t.Run("no wait once the interval has passed", func(t *testing.T) {
		th, clock := newFakeThrottle(time.Second)
		_ = th.Wait(context.Background())
		clock.now = clock.now.Add(2 * time.Second)
		_ = th.Wait(context.Background())

		if len(clock.sleeps) != 0 {
			t.Errorf("expected no sleep, got %v", clock.sleeps)
		}
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		th := NewThrottle(time.Hour)
		_ = th.Wait(context.Background())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := th.Wait(ctx); err == nil {
			t.Error("expected context error")
		}
	})
}
