package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimits configures per-client limits. Zero disables a limit.
type RateLimits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks fixed-window request counts and daily upload volume per client.
type RateLimiter struct {
	mu     sync.Mutex
	limits RateLimits
	now    func() time.Time
	usage  map[string]*ClientUsage
}

// ClientUsage is the usage recorded for one client.
type ClientUsage struct {
	RequestsThisMinute int
	RequestsThisHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(limits RateLimits) *RateLimiter {
	return &RateLimiter{
		limits: limits,
		now:    time.Now,
		usage:  make(map[string]*ClientUsage),
	}
}

// Allow records a request of dataSize bytes from clientID, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.clientUsage(clientID, now)
	u.roll(now)

	if err := rl.checkRate(u, now); err != nil {
		return err
	}
	if err := rl.checkQuota(u, dataSize, now); err != nil {
		return err
	}

	u.RequestsThisMinute++
	u.RequestsThisHour++
	u.RequestsToday++
	u.DataToday += dataSize
	return nil
}

func (rl *RateLimiter) clientUsage(clientID string, now time.Time) *ClientUsage {
	u, ok := rl.usage[clientID]
	if !ok {
		u = &ClientUsage{
			minuteStart: now.Truncate(time.Minute),
			hourStart:   now.Truncate(time.Hour),
			dayStart:    startOfDay(now),
		}
		rl.usage[clientID] = u
	}
	return u
}

// roll starts new windows once the current ones have elapsed.
func (u *ClientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart = now.Truncate(time.Minute)
		u.RequestsThisMinute = 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart = now.Truncate(time.Hour)
		u.RequestsThisHour = 0
	}
	if day := startOfDay(now); !day.Equal(u.dayStart) {
		u.dayStart = day
		u.RequestsToday = 0
		u.DataToday = 0
	}
}

func (rl *RateLimiter) checkRate(u *ClientUsage, now time.Time) error {
	if rl.limits.RequestsPerMinute > 0 && u.RequestsThisMinute >= rl.limits.RequestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.limits.RequestsPerMinute,
			RetryAfter: u.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.limits.RequestsPerHour > 0 && u.RequestsThisHour >= rl.limits.RequestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.limits.RequestsPerHour,
			RetryAfter: u.hourStart.Add(time.Hour).Sub(now),
		}
	}
	return nil
}

func (rl *RateLimiter) checkQuota(u *ClientUsage, dataSize int64, now time.Time) error {
	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.limits.MaxRequestsPerDay > 0 && u.RequestsToday >= rl.limits.MaxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.limits.MaxRequestsPerDay),
			Used:   int64(u.RequestsToday),
			Resets: resets,
		}
	}
	if rl.limits.MaxDataPerDay > 0 && u.DataToday+dataSize > rl.limits.MaxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.limits.MaxDataPerDay,
			Used:   u.DataToday,
			Resets: resets,
		}
	}
	return nil
}

// Usage returns a copy of the usage recorded for clientID.
func (rl *RateLimiter) Usage(clientID string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if u, ok := rl.usage[clientID]; ok {
		return *u
	}
	return ClientUsage{}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
