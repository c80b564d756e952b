package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable clock for limiter tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 10, 14, 5, 0, 0, time.UTC)}
}

func mustCommit(t *testing.T, l *Limiter) {
	t.Helper()
	r, err := l.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	r.Commit()
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	l := New(Limits{})
	if got := l.Limits(); got.Hourly != 100 || got.Daily != 1000 {
		t.Errorf("Limits(): got %+v, want 100/1000", got)
	}

	s := l.Stats()
	if s.RateLimitRemaining.Hourly != 100 || s.RateLimitRemaining.Daily != 1000 {
		t.Errorf("fresh remaining: got %+v", s.RateLimitRemaining)
	}
}

func TestCommit_CountsAndRemaining(t *testing.T) {
	t.Parallel()

	clock := newClock()
	l := New(Limits{}, WithClock(clock.Now))

	for i := 0; i < 7; i++ {
		mustCommit(t, l)
	}

	s := l.Stats()
	if s.SentThisHour != 7 {
		t.Errorf("SentThisHour: got %d, want 7", s.SentThisHour)
	}
	if s.SentToday != 7 {
		t.Errorf("SentToday: got %d, want 7", s.SentToday)
	}
	if s.RateLimitRemaining.Hourly != 93 {
		t.Errorf("Remaining.Hourly: got %d, want 93", s.RateLimitRemaining.Hourly)
	}
	if s.RateLimitRemaining.Daily != 993 {
		t.Errorf("Remaining.Daily: got %d, want 993", s.RateLimitRemaining.Daily)
	}
}

func TestCancel_DoesNotCount(t *testing.T) {
	t.Parallel()

	l := New(Limits{Hourly: 1, Daily: 5})

	r, err := l.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := l.Reserve(); !errors.Is(err, ErrHourlyLimit) {
		t.Errorf("second Reserve while pending: got %v, want ErrHourlyLimit", err)
	}
	r.Cancel()
	r.Commit() // no-op after Cancel

	if s := l.Stats(); s.SentThisHour != 0 || s.SentToday != 0 {
		t.Errorf("counts after cancel: got %+v", s)
	}
	if _, err := l.Reserve(); err != nil {
		t.Errorf("Reserve after cancel: %v", err)
	}
}

func TestReserve_HourlyCeiling(t *testing.T) {
	t.Parallel()

	clock := newClock()
	l := New(Limits{Hourly: 3, Daily: 10}, WithClock(clock.Now))
	for i := 0; i < 3; i++ {
		mustCommit(t, l)
	}

	_, err := l.Reserve()
	if !errors.Is(err, ErrHourlyLimit) {
		t.Fatalf("got %v, want ErrHourlyLimit", err)
	}
	if !errors.Is(err, ErrLimitExceeded) {
		t.Error("hourly error should wrap ErrLimitExceeded")
	}
	if s := l.Stats(); s.SentThisHour != 3 || s.RateLimitRemaining.Hourly != 0 {
		t.Errorf("counter moved past ceiling: %+v", s)
	}

	clock.Advance(time.Hour)
	if _, err := l.Reserve(); err != nil {
		t.Errorf("Reserve in next hour: %v", err)
	}
	if s := l.Stats(); s.SentThisHour != 0 || s.SentToday != 3 {
		t.Errorf("after rollover: got %+v", s)
	}
}

func TestReserve_DailyCeiling(t *testing.T) {
	t.Parallel()

	clock := newClock()
	l := New(Limits{Hourly: 100, Daily: 4}, WithClock(clock.Now))
	for i := 0; i < 4; i++ {
		mustCommit(t, l)
		clock.Advance(time.Hour)
	}

	if _, err := l.Reserve(); !errors.Is(err, ErrDailyLimit) {
		t.Errorf("got %v, want ErrDailyLimit", err)
	}

	clock.Advance(24 * time.Hour)
	if _, err := l.Reserve(); err != nil {
		t.Errorf("Reserve next day: %v", err)
	}
}

func TestCollect_DropsStaleBuckets(t *testing.T) {
	t.Parallel()

	clock := newClock()
	l := New(Limits{}, WithClock(clock.Now))
	mustCommit(t, l)
	clock.Advance(48 * time.Hour)
	mustCommit(t, l)

	l.mu.Lock()
	n := len(l.counts)
	l.mu.Unlock()
	if n != 2 {
		t.Errorf("buckets: got %d, want 2 (current hour and day)", n)
	}
}

func TestSeed(t *testing.T) {
	t.Parallel()

	l := New(Limits{Hourly: 10, Daily: 50})
	l.Seed(10, 40)

	s := l.Stats()
	if s.SentThisHour != 10 || s.SentToday != 40 {
		t.Errorf("Stats after Seed: got %+v", s)
	}
	if _, err := l.Reserve(); !errors.Is(err, ErrHourlyLimit) {
		t.Errorf("got %v, want ErrHourlyLimit", err)
	}
}

func TestReserve_ConcurrentNeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	l := New(Limits{Hourly: 25, Daily: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, err := l.Reserve(); err == nil {
				r.Commit()
			}
		}()
	}
	wg.Wait()

	if got := l.Stats().SentThisHour; got != 25 {
		t.Errorf("SentThisHour: got %d, want 25", got)
	}
}

func TestBucketKeys(t *testing.T) {
	t.Parallel()

	a := time.Date(2024, 1, 1, 10, 59, 59, 0, time.UTC)
	b := a.Add(time.Second)

	ha, da := bucketKeys(a)
	hb, db := bucketKeys(b)
	if ha == hb {
		t.Error("hour keys should differ across the hour boundary")
	}
	if da != db {
		t.Error("day keys should match within the same day")
	}
}
