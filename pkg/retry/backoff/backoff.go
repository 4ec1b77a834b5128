// Package backoff computes the delay between retry attempts.
package backoff

import (
	"math"
	"time"
)

// Strategy maps an attempt number, starting at 1, to the delay that should
// precede the next attempt.
type Strategy func(attempt uint) time.Duration

// Constant waits the same interval after every attempt.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// Exponential grows the delay by factor after every attempt, starting from
// initial. The result saturates at math.MaxInt64 instead of overflowing.
//
//	Exponential(time.Second, 3) = 1s, 3s, 9s, 27s, ...
func Exponential(initial time.Duration, factor float64) Strategy {
	return func(attempt uint) time.Duration {
		if attempt == 0 {
			attempt = 1
		}
		delay := float64(initial) * math.Pow(factor, float64(attempt-1))
		if delay >= math.MaxInt64 || math.IsInf(delay, 0) || math.IsNaN(delay) {
			return math.MaxInt64
		}
		if delay < 0 {
			return 0
		}
		return time.Duration(delay)
	}
}

// BinaryExponential doubles the delay after every attempt.
//
//	BinaryExponential(500*time.Millisecond) = 500ms, 1s, 2s, 4s, ...
func BinaryExponential(initial time.Duration) Strategy {
	return Exponential(initial, 2)
}

// Capped bounds the delay produced by s.
func Capped(s Strategy, max time.Duration) Strategy {
	return func(attempt uint) time.Duration {
		if d := s(attempt); d < max {
			return d
		}
		return max
	}
}
