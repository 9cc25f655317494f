// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldReserveID     = "reserve_id"
	FieldRuleID        = "rule_id"
	FieldRecordedID    = "recorded_id"
	FieldProgramID     = "program_id"
	FieldChannelID     = "channel_id"
	FieldSessionID     = "session_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldReason    = "reason"
	FieldRevision  = "revision"

	// Resource fields
	FieldTuner     = "tuner"
	FieldNetworkID = "network_id"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
