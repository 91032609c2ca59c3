package log

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Logger so that Debug and Warn calls beyond the limiter's
// budget are counted instead of written. Info and Error always pass through.
type RateLimited struct {
	Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewRateLimited allows perSecond messages with the given burst.
func NewRateLimited(l Logger, perSecond float64, burst int) *RateLimited {
	return &RateLimited{
		Logger:  OrNop(l),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Debug logs a debug message if the budget allows it
func (r *RateLimited) Debug(msg string, args ...interface{}) {
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	r.Logger.Debug(msg, args...)
}

// Warn logs a warning message if the budget allows it
func (r *RateLimited) Warn(msg string, args ...interface{}) {
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	r.Logger.Warn(msg, args...)
}

// Suppressed reports how many messages were dropped by the limiter.
func (r *RateLimited) Suppressed() int64 {
	return r.suppressed.Load()
}
