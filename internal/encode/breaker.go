// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encode

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/pvrd/internal/ipc"
	"github.com/ManuGH/pvrd/internal/metrics"
	"github.com/ManuGH/pvrd/internal/resilience"
)

// BreakerQueue fails pushes fast while the backing queue is unreachable.
// Replies from a live worker, including a full queue, never trip it.
type BreakerQueue struct {
	next    Queue
	backend string
	cb      *resilience.CircuitBreaker
}

func NewBreakerQueue(next Queue, backend string, threshold int, cooldown time.Duration) *BreakerQueue {
	return &BreakerQueue{
		next:    next,
		backend: backend,
		cb: resilience.NewCircuitBreaker("encode_"+backend, threshold, cooldown,
			resilience.WithFailurePredicate(isTransportError)),
	}
}

func (q *BreakerQueue) PushEncode(ctx context.Context, req Request) error {
	err := q.cb.Do(ctx, func(ctx context.Context) error { return q.next.PushEncode(ctx, req) })
	if errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.IncEncodePush(q.backend, "rejected")
	}
	return err
}

// State reports the breaker state for health checks.
func (q *BreakerQueue) State() resilience.State { return q.cb.State() }

func isTransportError(err error) bool {
	var remote *ipc.RemoteError
	return !errors.As(err, &remote) && !errors.Is(err, ErrQueueFull)
}
