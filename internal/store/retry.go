package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// retryPolicy bounds how writes are retried while another process holds
// the database lock.
type retryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

var defaultRetry = retryPolicy{Attempts: 4, Delay: 25 * time.Millisecond, MaxDelay: 500 * time.Millisecond}

// isBusy reports whether err is SQLite lock contention, the only failure a
// write is retried on.
func isBusy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"database is locked", "sqlite_busy", "database table is locked"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// backoff is the exponential delay before retry attempt n (0-based), capped
// at MaxDelay.
func (p retryPolicy) backoff(n int) time.Duration {
	delay := p.Delay
	for i := 0; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// do runs fn until it succeeds, fails with a non-busy error, or the attempts
// run out. The last error is returned.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for n := 0; n < attempts; n++ {
		if err = fn(); !isBusy(err) {
			return err
		}
		if n == attempts-1 {
			break
		}
		select {
		case <-time.After(p.backoff(n)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
