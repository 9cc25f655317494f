// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{name: "nil context", ctx: nil, requestID: "test-id-123", want: "test-id-123"},
		{name: "background context", ctx: context.Background(), requestID: "req-456", want: "req-456"},
		{name: "empty request ID", ctx: context.Background(), requestID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID) //nolint:staticcheck
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestReserveIDFromContext(t *testing.T) {
	_, ok := ReserveIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithReserveID(context.Background(), 42)
	id, ok := ReserveIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithReserveID(ctx, 7)
	l := WithContext(ctx, logger)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, float64(7), entry[FieldReserveID])
}

func TestWithComponent_AnnotatesComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test", Version: "v0"})
	defer Configure(Config{})

	l := WithComponent("reserve.store")
	l.Info().Msg("ready")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reserve.store", entry[FieldComponent])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "v0", entry["version"])
}

func TestWithComponentFromContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})
	defer Configure(Config{})

	ctx := ContextWithCorrelationID(context.Background(), "pass-1")
	ctx = ContextWithReserveID(ctx, 9)
	l := WithComponentFromContext(ctx, "api.recovery")
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api.recovery", entry[FieldComponent])
	assert.Equal(t, "pass-1", entry[FieldCorrelationID])
	assert.Equal(t, float64(9), entry[FieldReserveID])
}
