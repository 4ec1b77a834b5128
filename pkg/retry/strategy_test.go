package retry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/aqd-labs/aqd-solana/pkg/retry/backoff"
)

type recordedSleeps []time.Duration

func (r recordedSleeps) total() (total time.Duration) {
	for _, d := range r {
		total += d
	}
	return total
}

func (r recordedSleeps) mean() time.Duration {
	return r.total() / time.Duration(len(r))
}

func (r recordedSleeps) deviation() time.Duration {
	mean := float64(r.mean())
	var dev float64
	for _, d := range r {
		dev += math.Abs(float64(d) - mean)
	}
	return time.Duration(dev / float64(len(r)))
}

// recordSleeps swaps the package sleep for one that returns immediately.
func recordSleeps(t *testing.T) *recordedSleeps {
	var sleeps recordedSleeps
	original := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = original })
	return &sleeps
}

func TestLimit(t *testing.T) {
	s := Limit(3)
	assert.True(t, s(1, errors.New("x")))
	assert.True(t, s(2, errors.New("x")))
	assert.False(t, s(3, errors.New("x")))

	assert.False(t, Limit(0)(1, errors.New("x")))
}

func TestRetriableErrors(t *testing.T) {
	errNotFound := errors.New("signature not found")
	errPending := errors.New("not confirmed")

	s := RetriableErrors(errNotFound, errPending)
	assert.True(t, s(1, errNotFound))
	assert.True(t, s(1, errors.Wrapf(errPending, "sig %s", "abc")))
	assert.False(t, s(1, errors.New("insufficient funds")))

	assert.False(t, RetriableErrors()(1, errNotFound))
}

func TestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Context(ctx)

	assert.True(t, s(1, errors.New("x")))
	cancel()
	assert.False(t, s(2, errors.New("x")))
}

func TestContext_SkipsBackoffOnceDone(t *testing.T) {
	sleeps := recordSleeps(t)

	ctx, cancel := context.WithCancel(context.Background())
	attempts, err := Retry(func() error {
		cancel()
		return errors.New("pending")
	},
		Context(ctx),
		BackoffContext(context.Background(), backoff.Constant(time.Millisecond), time.Millisecond),
	)
	assert.EqualError(t, err, "pending")
	assert.EqualValues(t, 1, attempts)
	assert.Empty(t, *sleeps)
}

func TestBackoffContext_Capped(t *testing.T) {
	sleeps := recordSleeps(t)

	s := BackoffContext(context.Background(), backoff.BinaryExponential(100*time.Millisecond), 500*time.Millisecond)
	for attempt := uint(1); attempt <= 5; attempt++ {
		assert.True(t, s(attempt, errors.New("x")))
	}

	assert.Equal(t, recordedSleeps{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, *sleeps)
}

func TestBackoffContext(t *testing.T) {
	sleeps := recordSleeps(t)

	ctx, cancel := context.WithCancel(context.Background())
	s := BackoffContext(ctx, backoff.Constant(time.Second), time.Second)

	assert.True(t, s(1, errors.New("x")))
	cancel()
	assert.False(t, s(2, errors.New("x")))
	assert.Len(t, *sleeps, 2)
}

func TestBackoffWithJitter(t *testing.T) {
	sleeps := recordSleeps(t)

	delay := time.Millisecond
	s := BackoffWithJitter(backoff.Constant(delay), delay, 0.1)
	for i := 0; i < 10000; i++ {
		assert.True(t, s(1, errors.New("x")))
	}

	for _, d := range *sleeps {
		assert.InDelta(t, float64(delay), float64(d), 0.1*float64(delay)+1)
	}

	// Uniform jitter of +/-10% averages out to the delay, with a mean
	// absolute deviation of 5%.
	assert.InDelta(t, float64(delay), float64(sleeps.mean()), 0.01*float64(delay))
	assert.InDelta(t, 0.05*float64(delay), float64(sleeps.deviation()), 0.005*float64(delay))
}
