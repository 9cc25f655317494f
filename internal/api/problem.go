// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/pvrd/internal/api/middleware"
	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/ipc"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/recorded"
	"github.com/ManuGH/pvrd/internal/reserve"
)

// Stable machine codes of problem responses.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeInvalid     = "INVALID_INPUT"
	CodeBusy        = "STORE_BUSY"
	CodeUnavailable = "UNAVAILABLE"
	CodeTimeout     = "UPSTREAM_TIMEOUT"
	CodeInternal    = "INTERNAL"
)

// writeProblem writes an RFC 7807 problem details response.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	reqID := log.RequestIDFromContext(r.Context())
	res := map[string]any{
		"type":      "about:blank",
		"title":     http.StatusText(status),
		"status":    status,
		"code":      code,
		"instance":  r.URL.EscapedPath(),
		"requestId": reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if reqID != "" {
		w.Header().Set(middleware.HeaderRequestID, reqID)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Int("status", status).Msg("failed to encode problem response")
	}
}

// writeError maps a domain error onto a problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reserve.ErrNotFound),
		errors.Is(err, dvr.ErrRuleNotFound),
		errors.Is(err, recorded.ErrNotFound),
		errors.Is(err, epg.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, reserve.ErrInvalidReserveOption),
		errors.Is(err, dvr.ErrInvalidRuleOption):
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
	case errors.Is(err, reserve.ErrExecutionLocked):
		w.Header().Set("Retry-After", "1")
		writeProblem(w, r, http.StatusConflict, CodeBusy, err.Error())
	case errors.Is(err, encode.ErrQueueFull):
		writeProblem(w, r, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	case errors.Is(err, ipc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, r, http.StatusGatewayTimeout, CodeTimeout, err.Error())
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str("method", r.Method).Str(log.FieldPath, r.URL.Path).Msg("request failed")
		writeProblem(w, r, http.StatusInternalServerError, CodeInternal, "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
