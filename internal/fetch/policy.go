package fetch

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffPolicy decides how many attempts a fetch gets and how long to wait
// between them.
type BackoffPolicy interface {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts() int
	// Delay is the wait before the attempt numbered attempt+1, where attempt
	// counts completed tries starting at 1.
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval between every attempt.
type FixedBackoff struct {
	Attempts int
	Interval time.Duration
}

// NewFixedBackoff returns the default policy: 3 attempts, 1s apart.
func NewFixedBackoff() FixedBackoff {
	return FixedBackoff{Attempts: 3, Interval: time.Second}
}

// MaxAttempts implements BackoffPolicy.
func (p FixedBackoff) MaxAttempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

// Delay implements BackoffPolicy.
func (p FixedBackoff) Delay(int) time.Duration {
	return p.Interval
}

// ExponentialBackoff doubles the delay after every attempt up to a ceiling,
// with jitter over the upper half of the window.
type ExponentialBackoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// MaxAttempts implements BackoffPolicy.
func (p ExponentialBackoff) MaxAttempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

// Delay implements BackoffPolicy.
func (p ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
