// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long one pass may hold the store.
const DefaultLockTimeout = 10 * time.Second

// execLock is a try-lock with a safety timeout. Each acquisition gets a
// generation; once the timeout force-releases the lock that generation can
// no longer commit.
type execLock struct {
	mu      sync.Mutex
	held    bool
	gen     uint64
	holder  string
	since   time.Time
	timer   *time.Timer
	timeout time.Duration
	onForce func(holder string, heldFor time.Duration)
}

func newExecLock(timeout time.Duration, onForce func(holder string, heldFor time.Duration)) *execLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &execLock{timeout: timeout, onForce: onForce}
}

// TryLock acquires the lock without waiting.
func (l *execLock) TryLock(holder string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return 0, false
	}
	l.held = true
	l.gen++
	l.holder = holder
	l.since = time.Now()
	gen := l.gen
	l.timer = time.AfterFunc(l.timeout, func() { l.forceRelease(gen) })
	return gen, true
}

func (l *execLock) forceRelease(gen uint64) {
	l.mu.Lock()
	if !l.held || l.gen != gen {
		l.mu.Unlock()
		return
	}
	holder, heldFor := l.holder, time.Since(l.since)
	l.held = false
	l.timer = nil
	l.mu.Unlock()

	if l.onForce != nil {
		l.onForce(holder, heldFor)
	}
}

// Unlock releases gen. It is a no-op when the lock was force-released.
func (l *execLock) Unlock(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.gen != gen {
		return
	}
	l.held = false
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Commit runs fn while gen still owns the lock and reports whether it ran.
// The safety timeout cannot fire in the middle of fn.
func (l *execLock) Commit(gen uint64, fn func() error) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.gen != gen {
		return false, nil
	}
	return true, fn()
}

// Held reports whether any pass holds the lock.
func (l *execLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
