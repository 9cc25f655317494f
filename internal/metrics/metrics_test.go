// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetReservations(t *testing.T) {
	SetReservations(3, 1, 2, 4)
	assert.Equal(t, 3.0, testutil.ToFloat64(reservations.WithLabelValues("normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reservations.WithLabelValues("conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reservations.WithLabelValues("skip")))
	assert.Equal(t, 4.0, testutil.ToFloat64(reservations.WithLabelValues("overlap")))
}

func TestObserveSchedulerPass_UnknownTrigger(t *testing.T) {
	before := testutil.ToFloat64(schedulerPassTotal.WithLabelValues("unknown", "locked"))
	ObserveSchedulerPass("", "locked", time.Millisecond)
	after := testutil.ToFloat64(schedulerPassTotal.WithLabelValues("unknown", "locked"))
	assert.Equal(t, before+1, after)
}

func TestIncBusDropReason_NormalizesEmptyLabels(t *testing.T) {
	before := testutil.ToFloat64(BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	assert.Equal(t, before+1, testutil.ToFloat64(BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}
