// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/metrics"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "reserves")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(context.Background(), "reserves", i))
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, i, <-sub.C())
	}
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBusWithBuffer(2)
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", "msg"))
	}

	initial := testutil.ToFloat64(metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", "blocked")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := testutil.ToFloat64(metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))
	require.Greater(t, final, initial, "expected bus drop counter to increase")
}

func TestMemoryBusCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.C()
	require.False(t, open)
	require.NoError(t, b.Publish(context.Background(), "topic", "after-close"))
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", "msg")
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}
