package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// Operation is a single fallible attempt.
type Operation func(ctx context.Context) error

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between attempts (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // attempt is 1-based
	Wait        func(ctx context.Context, d time.Duration) error
	Logger      logrus.FieldLogger
}

// DefaultRetryPolicy returns three attempts spaced one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRetryDelay}
}

// RetryExhaustedError reports that every attempt of an operation failed. Only
// the last attempt's error is kept.
type RetryExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	if e.Attempts <= 1 {
		return fmt.Sprintf("%s: %v", e.Label, e.Err)
	}
	return fmt.Sprintf("all %d attempts failed for %s: %v", e.Attempts, e.Label, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Execute runs op until it succeeds or the attempt budget is spent, waiting
// between attempts but never after the last one. It returns the number of
// attempts made. Context cancellation is returned as is.
func (p RetryPolicy) Execute(ctx context.Context, label string, op Operation) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	wait := p.Wait
	if wait == nil {
		wait = sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"label":        label,
				"attempt":      attempt,
				"max_attempts": maxAttempts,
			}).WithError(lastErr).Warn("Attempt failed")
		}

		if attempt == maxAttempts {
			break
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return attempt, &RetryExhaustedError{Label: label, Attempts: attempt, Err: lastErr}
		}
		delay := p.Delay
		if p.DelayFunc != nil {
			delay = p.DelayFunc(attempt, lastErr)
		}
		if delay > 0 {
			if err := wait(ctx, delay); err != nil {
				return attempt, err
			}
		}
	}
	return maxAttempts, &RetryExhaustedError{Label: label, Attempts: maxAttempts, Err: lastErr}
}

// IsRetryExhausted reports whether err came from an exhausted retry loop.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
