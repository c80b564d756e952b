// Package ratelimit enforces hourly and daily send quotas for the dispatcher.
package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Default ceilings.
const (
	DefaultHourly = 100
	DefaultDaily  = 1000
)

var (
	// ErrLimitExceeded is wrapped by both quota errors.
	ErrLimitExceeded = errors.New("rate limit exceeded")

	ErrHourlyLimit = fmt.Errorf("%w: hourly limit reached", ErrLimitExceeded)
	ErrDailyLimit  = fmt.Errorf("%w: daily limit reached", ErrLimitExceeded)
)

// Limits holds the per-window ceilings. Zero values fall back to defaults.
type Limits struct {
	Hourly int
	Daily  int
}

// Remaining is the quota left in the current windows.
type Remaining struct {
	Hourly int `json:"hourly"`
	Daily  int `json:"daily"`
}

// Stats is a snapshot of the current windows.
type Stats struct {
	SentToday          int       `json:"sent_today"`
	SentThisHour       int       `json:"sent_this_hour"`
	RateLimitRemaining Remaining `json:"rate_limit_remaining"`
}

// Limiter counts committed sends per hour and per day bucket. Buckets are
// keyed by the UTC hour/day index and created on first use; stale buckets
// are dropped whenever a counter changes.
//
// The check and the increment are split by a reservation so the transport
// call can happen outside the lock while concurrent callers still cannot
// push a window past its ceiling.
type Limiter struct {
	mu      sync.Mutex
	limits  Limits
	now     func() time.Time
	counts  map[string]int
	pending map[string]int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter with the given ceilings.
func New(limits Limits, opts ...Option) *Limiter {
	if limits.Hourly <= 0 {
		limits.Hourly = DefaultHourly
	}
	if limits.Daily <= 0 {
		limits.Daily = DefaultDaily
	}
	l := &Limiter{
		limits:  limits,
		now:     time.Now,
		counts:  make(map[string]int),
		pending: make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the configured ceilings.
func (l *Limiter) Limits() Limits {
	return l.limits
}

// Reservation holds one slot in the current hour and day windows until it
// is committed or cancelled.
type Reservation struct {
	l       *Limiter
	hourKey string
	dayKey  string
	done    bool
}

// Reserve claims a slot if both windows are below their ceilings. It
// returns ErrHourlyLimit or ErrDailyLimit otherwise and changes nothing.
func (l *Limiter) Reserve() (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hourKey, dayKey := bucketKeys(l.now())

	if l.counts[hourKey]+l.pending[hourKey] >= l.limits.Hourly {
		return nil, ErrHourlyLimit
	}
	if l.counts[dayKey]+l.pending[dayKey] >= l.limits.Daily {
		return nil, ErrDailyLimit
	}

	l.pending[hourKey]++
	l.pending[dayKey]++
	return &Reservation{l: l, hourKey: hourKey, dayKey: dayKey}, nil
}

// Commit records the reserved send in both windows.
func (r *Reservation) Commit() {
	r.finish(true)
}

// Cancel releases the slot without counting a send.
func (r *Reservation) Cancel() {
	r.finish(false)
}

func (r *Reservation) finish(commit bool) {
	l := r.l
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.done {
		return
	}
	r.done = true

	l.release(r.hourKey)
	l.release(r.dayKey)
	if commit {
		l.counts[r.hourKey]++
		l.counts[r.dayKey]++
	}
	l.collect()
}

// release drops one pending slot for key. The caller must hold l.mu.
func (l *Limiter) release(key string) {
	if l.pending[key] <= 1 {
		delete(l.pending, key)
		return
	}
	l.pending[key]--
}

// Seed sets the committed counts of the current windows, used to restore
// state from the dispatch log after a restart.
func (l *Limiter) Seed(sentThisHour, sentToday int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hourKey, dayKey := bucketKeys(l.now())
	l.counts[hourKey] = sentThisHour
	l.counts[dayKey] = sentToday
	l.collect()
}

// Stats returns the committed counts and remaining quota of the current
// windows. It does not modify state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	hourKey, dayKey := bucketKeys(l.now())
	hour := l.counts[hourKey]
	day := l.counts[dayKey]

	return Stats{
		SentToday:    day,
		SentThisHour: hour,
		RateLimitRemaining: Remaining{
			Hourly: max(0, l.limits.Hourly-hour),
			Daily:  max(0, l.limits.Daily-day),
		},
	}
}

// collect drops committed buckets that are no longer current. Pending
// buckets are left alone until their reservation finishes. The caller must
// hold l.mu.
func (l *Limiter) collect() {
	hourKey, dayKey := bucketKeys(l.now())
	for key := range l.counts {
		if key != hourKey && key != dayKey {
			delete(l.counts, key)
		}
	}
}

// bucketKeys returns the hour and day bucket keys for t.
func bucketKeys(t time.Time) (string, string) {
	unix := t.UTC().Unix()
	hour := unix / 3600
	day := unix / 86400
	return "h:" + strconv.FormatInt(hour, 10), "d:" + strconv.FormatInt(day, 10)
}
