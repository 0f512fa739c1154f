package auth

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttleSweepThreshold = 10000

// LoginThrottle limits failed login attempts per email. An email may fail
// maxAttempts times; the failure that empties its bucket locks it out for a
// full window. The bucket refills one attempt per window, so no window ever
// admits more than maxAttempts failures. A success resets the email.
type LoginThrottle struct {
	mu      sync.Mutex
	window  time.Duration
	burst   int
	buckets map[string]*failureBucket
}

type failureBucket struct {
	lim         *rate.Limiter
	lockedUntil time.Time
}

// NewLoginThrottle returns nil when maxAttempts or window is not positive,
// which disables throttling.
func NewLoginThrottle(maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 || window <= 0 {
		return nil
	}
	return &LoginThrottle{
		window:  window,
		burst:   maxAttempts,
		buckets: make(map[string]*failureBucket),
	}
}

func throttleKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Blocked reports whether email is locked out at now.
func (t *LoginThrottle) Blocked(email string, now time.Time) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[throttleKey(email)]
	if !ok {
		return false
	}
	return now.Before(b.lockedUntil) || b.lim.TokensAt(now) < 1
}

// Fail records a failed attempt for email at now.
func (t *LoginThrottle) Fail(email string, now time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := throttleKey(email)
	b, ok := t.buckets[key]
	if !ok {
		if len(t.buckets) >= throttleSweepThreshold {
			t.sweep(now)
		}
		b = &failureBucket{lim: rate.NewLimiter(rate.Every(t.window), t.burst)}
		t.buckets[key] = b
	}
	if !b.lim.AllowN(now, 1) || b.lim.TokensAt(now) < 1 {
		b.lockedUntil = now.Add(t.window)
	}
}

// Reset forgets failures recorded for email.
func (t *LoginThrottle) Reset(email string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, throttleKey(email))
}

// sweep drops buckets that are unlocked and fully refilled. Caller holds mu.
func (t *LoginThrottle) sweep(now time.Time) {
	for key, b := range t.buckets {
		if !now.Before(b.lockedUntil) && b.lim.TokensAt(now) >= float64(t.burst) {
			delete(t.buckets, key)
		}
	}
}
