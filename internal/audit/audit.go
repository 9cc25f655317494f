// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audit records operator actions that change what gets recorded.
// It follows the WHO/WHAT/WHEN pattern.
package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventReserveAdd     EventType = "reserve.add"
	EventReserveEdit    EventType = "reserve.edit"
	EventReserveCancel  EventType = "reserve.cancel"
	EventReserveSkip    EventType = "reserve.skip"
	EventReserveUnskip  EventType = "reserve.unskip"
	EventReserveOverlap EventType = "reserve.overlap_removed"
	EventRecompute      EventType = "scheduler.recompute"

	EventRuleAdd     EventType = "rule.add"
	EventRuleUpdate  EventType = "rule.update"
	EventRuleDelete  EventType = "rule.delete"
	EventRuleEnable  EventType = "rule.enable"
	EventRuleDisable EventType = "rule.disable"

	EventRecordingStop EventType = "recording.stop"
	EventGuideImport   EventType = "guide.import"
	EventEncodeCleanup EventType = "encode.cleanup"

	EventConfigReload EventType = "config.reload"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Actor      string // client IP or "system"
	Resource   string
	Result     string
	RemoteAddr string
	UserAgent  string
	RequestID  string
	Details    map[string]string
}

// Logger writes audit events as zerolog lines tagged log_type=audit.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith writes through base.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{
		logger: base.With().Str("log_type", "audit").Logger(),
		now:    time.Now,
	}
}

func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	ev := l.logger.Info()
	if event.Result == ResultFailure {
		ev = l.logger.Warn()
	}
	ev = ev.Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("resource", event.Resource).
		Str("result", event.Result)
	if event.RemoteAddr != "" {
		ev = ev.Str("remote_addr", event.RemoteAddr)
	}
	if event.UserAgent != "" {
		ev = ev.Str("user_agent", event.UserAgent)
	}
	if event.RequestID != "" {
		ev = ev.Str(log.FieldRequestID, event.RequestID)
	}
	for k, v := range event.Details {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit event")
}

// Request records an API-initiated action. A non-nil err marks it failed.
func (l *Logger) Request(r *http.Request, typ EventType, resource string, err error, details map[string]string) {
	e := Event{
		Type:       typ,
		Actor:      clientIP(r.RemoteAddr),
		Resource:   resource,
		Result:     ResultSuccess,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		RequestID:  log.RequestIDFromContext(r.Context()),
		Details:    details,
	}
	if err != nil {
		e.Result = ResultFailure
		e.Details = withError(details, err)
	}
	l.Log(e)
}

// ConfigReload records a reload triggered by source ("signal" or "file").
func (l *Logger) ConfigReload(source string, err error) {
	e := Event{
		Type:     EventConfigReload,
		Actor:    "system",
		Resource: "config",
		Result:   ResultSuccess,
		Details:  map[string]string{"source": source},
	}
	if err != nil {
		e.Result = ResultFailure
		e.Details = withError(e.Details, err)
	}
	l.Log(e)
}

func withError(details map[string]string, err error) map[string]string {
	out := make(map[string]string, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
