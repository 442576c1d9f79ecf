package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// lockout is the failed login state of one client IP
type lockout struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// RateLimiter locks an IP out after too many failed logins within a window
type RateLimiter struct {
	mu          sync.Mutex
	ips         map[string]*lockout
	maxFailures int
	window      time.Duration
	lockFor     time.Duration
	now         func() time.Time
}

// NewRateLimiter allows maxFailures per window before locking the IP for lockFor
func NewRateLimiter(maxFailures int, window, lockFor time.Duration) *RateLimiter {
	return &RateLimiter{
		ips:         make(map[string]*lockout),
		maxFailures: maxFailures,
		window:      window,
		lockFor:     lockFor,
		now:         time.Now,
	}
}

// StartCleanup drops stale entries every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip := range rl.ips {
				rl.entry(ip)
			}
			rl.mu.Unlock()
		}
	}
}

// entry returns the live state of ip, dropping it once the window and any lock
// have passed. Callers hold mu.
func (rl *RateLimiter) entry(ip string) *lockout {
	l, ok := rl.ips[ip]
	if !ok {
		return nil
	}
	now := rl.now()
	if now.Before(l.lockedUntil) || now.Sub(l.windowStart) <= rl.window {
		return l
	}
	delete(rl.ips, ip)
	return nil
}

// Check reports whether ip may attempt a login, the failures it has left and,
// when refused, how long it has to wait
func (rl *RateLimiter) Check(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l := rl.entry(ip)
	if l == nil {
		return true, rl.maxFailures, 0
	}
	if wait := l.lockedUntil.Sub(rl.now()); wait > 0 {
		return false, 0, wait
	}
	return true, rl.maxFailures - l.failures, 0
}

// Remaining returns the failed attempts ip has left
func (rl *RateLimiter) Remaining(ip string) int {
	_, n, _ := rl.Check(ip)
	return n
}

// Fail counts a failed login and locks the IP once it reaches the limit
func (rl *RateLimiter) Fail(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l := rl.entry(ip)
	if l == nil {
		l = &lockout{windowStart: rl.now()}
		rl.ips[ip] = l
	}
	l.failures++
	if l.failures >= rl.maxFailures {
		l.lockedUntil = rl.now().Add(rl.lockFor)
	}
}

// Succeed forgets the failures of ip
func (rl *RateLimiter) Succeed(ip string) {
	rl.mu.Lock()
	delete(rl.ips, ip)
	rl.mu.Unlock()
}

// LoginRateLimitMiddleware rejects login attempts from locked-out IPs
func LoginRateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, wait := rl.Check(c.ClientIP())
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if allowed {
			c.Next()
			return
		}

		retryAfter := int(wait.Round(time.Second).Seconds())
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many login attempts. Please try again in " + wait.Round(time.Second).String() + ".",
			"retry_after": retryAfter,
		})
	}
}
