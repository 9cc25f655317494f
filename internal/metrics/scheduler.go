// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerPassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_scheduler_pass_total",
		Help: "Total number of scheduler passes by trigger and result",
	}, []string{"trigger", "result"}) // result=committed|locked|rejected|error|stale

	schedulerPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pvrd_scheduler_pass_duration_seconds",
		Help:    "Duration of committed scheduler passes",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	reservations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pvrd_reservations",
		Help: "Committed reservations by classification",
	}, []string{"class"}) // class=normal|conflict|skip|overlap

	lockForceReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvrd_scheduler_lock_force_released_total",
		Help: "Total number of execution locks released by the safety timeout",
	})
)

// ObserveSchedulerPass records the outcome of one scheduler pass.
func ObserveSchedulerPass(trigger, result string, d time.Duration) {
	if trigger == "" {
		trigger = "unknown"
	}
	schedulerPassTotal.WithLabelValues(trigger, result).Inc()
	if result == "committed" {
		schedulerPassDuration.Observe(d.Seconds())
	}
}

// SetReservations publishes the committed classification counts.
func SetReservations(normal, conflict, skip, overlap int) {
	reservations.WithLabelValues("normal").Set(float64(normal))
	reservations.WithLabelValues("conflict").Set(float64(conflict))
	reservations.WithLabelValues("skip").Set(float64(skip))
	reservations.WithLabelValues("overlap").Set(float64(overlap))
}

// IncLockForceReleased counts execution locks reclaimed from a stuck pass.
func IncLockForceReleased() {
	lockForceReleasedTotal.Inc()
}
