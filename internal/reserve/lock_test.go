// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecLock_TryLockIsExclusive(t *testing.T) {
	l := newExecLock(time.Minute, nil)

	gen, ok := l.TryLock("a")
	require.True(t, ok)
	_, ok = l.TryLock("b")
	assert.False(t, ok)

	l.Unlock(gen)
	gen2, ok := l.TryLock("b")
	require.True(t, ok)
	assert.Greater(t, gen2, gen)
	l.Unlock(gen2)
	assert.False(t, l.Held())
}

func TestExecLock_ForceReleaseInvalidatesGeneration(t *testing.T) {
	var forced atomic.Int32
	l := newExecLock(20*time.Millisecond, func(holder string, heldFor time.Duration) {
		assert.Equal(t, "slow", holder)
		assert.GreaterOrEqual(t, heldFor, 20*time.Millisecond)
		forced.Add(1)
	})

	gen, ok := l.TryLock("slow")
	require.True(t, ok)
	require.Eventually(t, func() bool { return forced.Load() == 1 }, time.Second, 2*time.Millisecond)
	assert.False(t, l.Held())

	ran, err := l.Commit(gen, func() error { return nil })
	require.NoError(t, err)
	assert.False(t, ran, "stale generation must not commit")

	next, ok := l.TryLock("next")
	require.True(t, ok)

	// Unlocking the stale generation must not release the new holder.
	l.Unlock(gen)
	assert.True(t, l.Held())
	l.Unlock(next)
}

func TestExecLock_CommitReportsError(t *testing.T) {
	l := newExecLock(time.Minute, nil)
	gen, ok := l.TryLock("a")
	require.True(t, ok)
	defer l.Unlock(gen)

	boom := errors.New("boom")
	ran, err := l.Commit(gen, func() error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}
