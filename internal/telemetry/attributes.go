// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Scheduler attributes
	PassTriggerKey  = "scheduler.trigger"
	PassResultKey   = "scheduler.result"
	PassRulesKey    = "scheduler.rules"
	PassReservesKey = "scheduler.reserves"
	PassTunersKey   = "scheduler.tuners"
	DiffInsertedKey = "scheduler.diff.inserted"
	DiffUpdatedKey  = "scheduler.diff.updated"
	DiffDeletedKey  = "scheduler.diff.deleted"

	// Recording attributes
	ReserveIDKey      = "reserve.id"
	RuleIDKey         = "rule.id"
	ChannelIDKey      = "channel.id"
	RecordingStateKey = "recording.state"
	TunerKey          = "recording.tuner"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PassAttributes describes the inputs of a scheduler pass.
func PassAttributes(trigger string, rules, reserves, tuners int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PassTriggerKey, trigger),
		attribute.Int(PassRulesKey, rules),
		attribute.Int(PassReservesKey, reserves),
		attribute.Int(PassTunersKey, tuners),
	}
}

// DiffAttributes describes what a pass committed.
func DiffAttributes(inserted, updated, deleted int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(DiffInsertedKey, inserted),
		attribute.Int(DiffUpdatedKey, updated),
		attribute.Int(DiffDeletedKey, deleted),
	}
}

// RecordingAttributes creates recording lifecycle span attributes. Zero ids
// are omitted.
func RecordingAttributes(reserveID, ruleID, channelID int64, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs, attribute.Int64(ReserveIDKey, reserveID))
	if ruleID != 0 {
		attrs = append(attrs, attribute.Int64(RuleIDKey, ruleID))
	}
	if channelID != 0 {
		attrs = append(attrs, attribute.Int64(ChannelIDKey, channelID))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(RecordingStateKey, state))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
