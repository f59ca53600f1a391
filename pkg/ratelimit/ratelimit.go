// Package ratelimit implements the fixed-window request limiter used to
// blunt brute-force and spam abuse of onboarding operations. Windows are
// kept per (subject, scope) key in process memory; expired windows are
// reclaimed by a periodic sweep.
package ratelimit

import (
	"sync"
	"time"
)

// Config defines the window parameters for one limit.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// Limit profiles for onboarding operations. Resend is deliberately tighter
// than creation: resending is the cheapest way to spam a mailbox.
var (
	// DefaultClientLimit applies per client identifier (IP/device).
	DefaultClientLimit = Config{Window: 15 * time.Minute, MaxRequests: 10}
	// DefaultAccountLimit applies per issuing account.
	DefaultAccountLimit = Config{Window: time.Hour, MaxRequests: 20}
	// ResendClientLimit overrides DefaultClientLimit for resend operations.
	ResendClientLimit = Config{Window: 15 * time.Minute, MaxRequests: 5}
	// ResendAccountLimit overrides DefaultAccountLimit for resend operations.
	ResendAccountLimit = Config{Window: time.Hour, MaxRequests: 10}
)

// DefaultSweepInterval is how often the background sweep reclaims expired
// windows. Sweeping is housekeeping only; Check is correct without it.
const DefaultSweepInterval = 5 * time.Minute

// Result reports the outcome of a limit check.
type Result struct {
	Allowed bool
	// Remaining is how many requests are left in the current window.
	Remaining int
	// ResetAt is when the current window expires. On denial it is the
	// unchanged reset time of the window that rejected the request.
	ResetAt time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed windows keyed by (subject, scope). The zero value is
// not usable; construct with New.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	// now is the clock source, swappable in tests.
	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Check records a request for (subject, scope) under cfg and reports whether
// it is allowed. The increment-and-compare is atomic with respect to other
// callers: two concurrent requests can never both claim the last slot.
//
// A request that lands exactly on MaxRequests is the last allowed request in
// the window; the next one is denied and the denial does not extend or
// consume the window.
func (l *Limiter) Check(subject, scope string, cfg Config) Result {
	key := subject + "|" + scope
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(cfg.Window)}
		l.windows[key] = w
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1, ResetAt: w.resetAt}
	}

	if w.count >= cfg.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, Remaining: cfg.MaxRequests - w.count, ResetAt: w.resetAt}
}

// CheckCombined evaluates the client-scoped limit first, then the
// account-scoped limit. The first denial short-circuits and is returned;
// when both pass, the account result is returned.
func (l *Limiter) CheckCombined(clientKey, accountKey string, clientCfg, accountCfg Config) Result {
	if res := l.Check(clientKey, "client", clientCfg); !res.Allowed {
		return res
	}
	return l.Check(accountKey, "account", accountCfg)
}

// Sweep removes every window that has expired and returns how many were
// reclaimed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// StartSweeping launches the background sweep loop. Call Stop to shut it
// down; each test should construct its own Limiter rather than sharing one.
func (l *Limiter) StartSweeping(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	go func() {
		defer close(l.doneCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the sweep loop started by StartSweeping and blocks until
// it has exited.
func (l *Limiter) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// size reports the number of live windows. Test hook.
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
