package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/aqd-labs/aqd-solana/pkg/retry/backoff"
)

// Strategy decides whether a failed attempt may be followed by another one.
// A strategy may block before answering.
type Strategy func(attempt uint, err error) bool

// Limit allows at most maxAttempts attempts in total.
func Limit(maxAttempts uint) Strategy {
	return func(attempt uint, _ error) bool {
		return attempt < maxAttempts
	}
}

// RetriableErrors only allows another attempt when the failure matches one of
// targets, as reported by errors.Is.
func RetriableErrors(targets ...error) Strategy {
	return func(_ uint, err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// Context stops retrying once ctx is done.
func Context(ctx context.Context) Strategy {
	return func(uint, error) bool {
		return ctx.Err() == nil
	}
}

// BackoffContext waits for the delay chosen by s, bounded by max, and then
// allows another attempt. The wait ends early when ctx is done, in which case
// no further attempt is allowed.
func BackoffContext(ctx context.Context, s backoff.Strategy, max time.Duration) Strategy {
	capped := backoff.Capped(s, max)
	return func(attempt uint, _ error) bool {
		return wait(ctx, capped(attempt))
	}
}

// BackoffWithJitter waits like BackoffContext without a context, with the
// capped delay spread uniformly by the given fraction in either direction. A
// jitter of 0.1 turns a 100ms delay into anything between 90ms and 110ms.
func BackoffWithJitter(s backoff.Strategy, max time.Duration, jitter float64) Strategy {
	capped := backoff.Capped(s, max)
	return func(attempt uint, _ error) bool {
		spread := 1 + jitter*(2*rand.Float64()-1)
		return wait(context.Background(), time.Duration(float64(capped(attempt))*spread))
	}
}

// sleep is replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	return sleep(ctx, d) == nil
}
