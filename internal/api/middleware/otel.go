// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/pvrd/internal/telemetry"
)

// Tracing wraps the handler with OpenTelemetry HTTP instrumentation.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		annotated := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := wrap(w)
			next.ServeHTTP(sw, r)
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(telemetry.HTTPAttributes(r.Method, routePattern(r), sw.status)...)
		})
		return otelhttp.NewHandler(
			annotated,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return "HTTP " + r.Method + " " + r.URL.Path
			}),
		)
	}
}

// Probes and scrapes are not traced.
func shouldTrace(r *http.Request) bool {
	return !isProbe(r.URL.Path)
}

// TraceIDs returns the trace and span id of the active span, if any.
func TraceIDs(r *http.Request) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
