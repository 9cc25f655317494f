// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var errDown = errors.New("redis down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("encode", 2, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	assert.ErrorIs(t, cb.Do(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Do(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("encode", 2, time.Minute)
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	require.NoError(t, cb.Do(ctx, ok))
	_ = cb.Do(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("encode", 1, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	_ = cb.Do(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Minute)
	// Only one probe passes while half-open.
	err := cb.Do(ctx, func(context.Context) error {
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.ErrorIs(t, cb.Do(ctx, ok), ErrCircuitOpen)
		return errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, StateOpen, cb.State(), "failed probe reopens")

	clock.Advance(time.Minute)
	require.NoError(t, cb.Do(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	errFull := errors.New("queue full")
	cb := NewCircuitBreaker("encode", 1, time.Minute,
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, errFull) }))

	assert.ErrorIs(t, cb.Do(context.Background(), func(context.Context) error { return errFull }), errFull)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State(), "cancellation is not a dependency failure")
}
