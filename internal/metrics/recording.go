// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvrd_recordings_active",
		Help: "Recordings currently prepping or recording",
	})

	recordingOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_recording_outcome_total",
		Help: "Total number of finished recordings by terminal state",
	}, []string{"outcome"}) // outcome=completed|failed_prep|failed_recording|canceled

	recordingPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_recording_ts_packets_total",
		Help: "MPEG-TS packets seen by recorder sessions by kind",
	}, []string{"kind"}) // kind=ok|drop|error

	encodePushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_encode_push_total",
		Help: "Encode requests pushed to the encode queue by backend and result",
	}, []string{"backend", "result"})

	ipcCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_ipc_call_total",
		Help: "Child-process RPC calls by model, function and outcome",
	}, []string{"model", "func", "outcome"}) // outcome=ok|error|timeout|canceled
)

// SetRecordingsActive publishes the number of live sessions.
func SetRecordingsActive(n int) {
	recordingsActive.Set(float64(n))
}

// IncRecordingOutcome records a terminal recording state.
func IncRecordingOutcome(outcome string) {
	recordingOutcomeTotal.WithLabelValues(outcome).Inc()
}

// AddRecordingPackets accumulates packet accounting from a finished session.
func AddRecordingPackets(ok, drops, errs int64) {
	recordingPacketsTotal.WithLabelValues("ok").Add(float64(ok))
	recordingPacketsTotal.WithLabelValues("drop").Add(float64(drops))
	recordingPacketsTotal.WithLabelValues("error").Add(float64(errs))
}

// IncEncodePush records an encode queue push.
func IncEncodePush(backend, result string) {
	encodePushTotal.WithLabelValues(backend, result).Inc()
}

// IncIPCCall records a child-process RPC outcome.
func IncIPCCall(model, fn, outcome string) {
	ipcCallTotal.WithLabelValues(model, fn, outcome).Inc()
}

var (
	procSignalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_proc_signal_total",
		Help: "Signals sent to recorder process groups by signal and result",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_proc_wait_total",
		Help: "Recorder process exits observed during termination",
	}, []string{"outcome"}) // outcome=exit0|exit_nonzero|forced_exit0|forced_error
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, result string) {
	procSignalTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process exited.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pvrd_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvrd_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open",
	}, []string{"name", "reason"})
)

func SetCircuitBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}
