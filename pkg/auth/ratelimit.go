package auth

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an authenticated caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// SubjectLimiter applies one token bucket per subject.
type SubjectLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ RateLimiter = (*SubjectLimiter)(nil)

// NewSubjectLimiter allows each subject rps requests per second with the
// given burst. It returns nil when rps is not positive.
func NewSubjectLimiter(rps float64, burst int) *SubjectLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &SubjectLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow takes one token from the subject's bucket, or returns
// ErrTooManyRequests when it is empty. A nil limiter allows everything.
func (l *SubjectLimiter) Allow(_ context.Context, identity *Identity) error {
	if l == nil {
		return nil
	}
	if !l.bucket(identity.Subject).Allow() {
		return ErrTooManyRequests
	}
	return nil
}

func (l *SubjectLimiter) bucket(subject string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[subject]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[subject] = lim
	}
	return lim
}
