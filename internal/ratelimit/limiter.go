// Package ratelimit provides an in-process, per-key ingest limiter: active
// concurrency, a request-window counter, and a writer-time budget, each
// independently enforced. It is adapted from a Redis-backed minute/hour
// token-bucket limiter; this domain keeps no shared cache tier, so the
// window counters live in a sync.Map keyed by client instead of Redis
// INCR/EXPIRE calls.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/redgrouse/backend/internal/apperror"
)

// Limits configures the three bounds enforced per key.
type Limits struct {
	MaxActive      int           // concurrent in-flight ingests allowed for one key
	WindowRequests int           // ingests allowed per Window
	Window         time.Duration // rolling window size for WindowRequests
	WriterBudget   time.Duration // cumulative writer time allowed per Window
}

// DefaultLimits is a conservative starting point for the optional ingest
// limiter: four concurrent ingests, thirty requests a minute, thirty
// seconds of writer time a minute.
func DefaultLimits() Limits {
	return Limits{
		MaxActive:      4,
		WindowRequests: 30,
		Window:         time.Minute,
		WriterBudget:   30 * time.Second,
	}
}

type window struct {
	mu         sync.Mutex
	start      time.Time
	count      int
	writerTime time.Duration
}

// resetIfExpired zeroes the window if now has moved past its validity (or
// the window has never been started).
func (w *window) resetIfExpired(now time.Time, size time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= size {
		w.start = now
		w.count = 0
		w.writerTime = 0
	}
}

type entry struct {
	active int32
	win    window
}

// Limiter tracks per-key active count, window count, and writer-time budget
// entirely in memory. The zero value is not usable; construct with New.
type Limiter struct {
	limits  Limits
	entries sync.Map // string -> *entry
}

// New returns a Limiter enforcing limits.
func New(limits Limits) *Limiter {
	return &Limiter{limits: limits}
}

func (l *Limiter) load(key string) *entry {
	v, _ := l.entries.LoadOrStore(key, &entry{})
	return v.(*entry)
}

// Ticket represents one admitted ingest; callers must call End exactly once,
// reporting how long the actual write phase took so it counts against the
// writer-time budget.
type Ticket struct {
	e        *entry
	started  time.Time
	released bool
}

// Begin admits a new ingest for key, or returns a RATE_LIMITED apperror if
// any of the three bounds is currently exceeded. now is passed in so callers
// (and tests) control the clock rather than the limiter calling time.Now
// internally on every check.
func (l *Limiter) Begin(key string, now time.Time) (*Ticket, error) {
	e := l.load(key)

	if n := atomic.AddInt32(&e.active, 1); int(n) > l.limits.MaxActive {
		atomic.AddInt32(&e.active, -1)
		return nil, apperror.RateLimited("too many concurrent ingests for this key")
	}

	e.win.mu.Lock()
	e.win.resetIfExpired(now, l.limits.Window)
	if e.win.count >= l.limits.WindowRequests {
		retryAfter := l.limits.Window - now.Sub(e.win.start)
		e.win.mu.Unlock()
		atomic.AddInt32(&e.active, -1)
		return nil, apperror.RateLimited("ingest request window exceeded, retry in " + retryAfter.Round(time.Second).String())
	}
	if e.win.writerTime >= l.limits.WriterBudget {
		e.win.mu.Unlock()
		atomic.AddInt32(&e.active, -1)
		return nil, apperror.RateLimited("writer-time budget exhausted for this window")
	}
	e.win.count++
	e.win.mu.Unlock()

	return &Ticket{e: e, started: now}, nil
}

// End releases the active slot and, given the time the write phase actually
// took, charges it against the window's writer-time budget. Safe to call at
// most once; subsequent calls are no-ops.
func (t *Ticket) End(writeDuration time.Duration) {
	if t.released {
		return
	}
	t.released = true
	atomic.AddInt32(&t.e.active, -1)

	t.e.win.mu.Lock()
	t.e.win.writerTime += writeDuration
	t.e.win.mu.Unlock()
}
