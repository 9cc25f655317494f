// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func find(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestPassAttributes(t *testing.T) {
	attrs := PassAttributes("rule.updated", 3, 12, 2)
	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}
	if v, _ := find(attrs, PassTriggerKey); v.AsString() != "rule.updated" {
		t.Errorf("trigger = %q", v.AsString())
	}
	if v, _ := find(attrs, PassReservesKey); v.AsInt64() != 12 {
		t.Errorf("reserves = %d", v.AsInt64())
	}
}

func TestRecordingAttributes(t *testing.T) {
	tests := []struct {
		name    string
		ruleID  int64
		channel int64
		state   string
		wantLen int
	}{
		{"all fields", 2, 10, "recording", 4},
		{"manual", 0, 10, "prepping", 3},
		{"only reserve", 0, 0, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := RecordingAttributes(7, tt.ruleID, tt.channel, tt.state)
			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if v, ok := find(attrs, ReserveIDKey); !ok || v.AsInt64() != 7 {
				t.Errorf("reserve id missing or wrong: %v", v)
			}
		})
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "timeout")
	if v, ok := find(attrs, ErrorKey); !ok || !v.AsBool() {
		t.Error("expected error=true")
	}
	if v, _ := find(attrs, ErrorTypeKey); v.AsString() != "timeout" {
		t.Errorf("error.type = %q", v.AsString())
	}
}
