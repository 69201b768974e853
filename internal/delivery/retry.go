package delivery

import (
	"errors"
	"math"
	"net"
	"strings"
	"time"
)

// ErrNoHandler is returned for targets no registered prefix matches. It is
// never retried.
var ErrNoHandler = errors.New("no delivery handler")

// RetryPolicy retries failed deliveries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	sleep func(time.Duration)
}

// DefaultRetryPolicy makes 3 attempts, waiting 1s then 2s, never more than 10s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	}
}

// Retryable reports whether a delivery error is worth another attempt.
// Network errors are; rejections by the chat service are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrNoHandler) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{"invalid", "unauthorized", "forbidden", "chat not found", "bad request"} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}

// NextDelay returns the wait after the given 1-based attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn until it succeeds, fails permanently, or MaxAttempts is
// reached, returning the last error.
func (p *RetryPolicy) Execute(fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retryable(err) || attempt == attempts {
			break
		}
		sleep(p.NextDelay(attempt))
	}
	return err
}
