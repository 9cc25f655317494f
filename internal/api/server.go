// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the HTTP surface of the daemon: reservations, rules,
// active recordings, the recorded library and guide ingestion.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/audit"
	"github.com/ManuGH/pvrd/internal/api/middleware"
	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/health"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/recorded"
	"github.com/ManuGH/pvrd/internal/recording"
	"github.com/ManuGH/pvrd/internal/reserve"
)

const maxJSONBody = 1 << 20

// Reservations is the reservation store as seen by the API.
type Reservations interface {
	AddManual(ctx context.Context, req reserve.ManualRequest) (int64, error)
	Edit(ctx context.Context, id int64, opts reserve.Options) error
	Cancel(ctx context.Context, id int64) error
	Skip(ctx context.Context, id int64) error
	RemoveSkip(ctx context.Context, id int64) error
	RemoveOverlap(ctx context.Context, id int64) error
	Get(id int64) (reserve.Reserve, error)
	List(f reserve.ListFilter) reserve.Page
	Counts() reserve.Counts
	Recompute(ctx context.Context, trigger string) error
	Notify(reason string)
}

// Rules is the rule repository.
type Rules interface {
	AddRule(r dvr.Rule) (int64, error)
	GetRule(id int64) (dvr.Rule, bool)
	GetRules() []dvr.Rule
	UpdateRule(id int64, r dvr.Rule) error
	SetEnabled(id int64, enabled bool) error
	DeleteRule(id int64) error
}

// Recordings exposes the sessions the recording engine is running.
type Recordings interface {
	Active() []recording.ActiveRecording
	StopRecording(ctx context.Context, reserveID int64, reason string) error
}

// Library reads finished recordings.
type Library interface {
	List(ctx context.Context, offset, limit int) ([]recorded.Recorded, error)
	Get(ctx context.Context, id int64) (recorded.Recorded, error)
}

// Maintenance runs encoder housekeeping. Optional.
type Maintenance interface {
	Cleanup(ctx context.Context) (encode.CleanupResult, error)
}

// Config tunes the HTTP surface.
type Config struct {
	Version string
	// RateLimit is requests per minute per client; zero disables it.
	RateLimit int
	// TracingService enables server spans under this name.
	TracingService string
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Reservations Reservations
	Rules        Rules
	Recordings   Recordings
	Library      Library
	Guide        epg.GuideWriter
	Maintenance  Maintenance
	// Health serves /healthz and /readyz; a bare manager is used when nil.
	Health *health.Manager
	// Audit records mutations; defaults to the "audit" component logger.
	Audit *audit.Logger
}

// Server routes API requests to the domain services.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router *chi.Mux
}

// New builds the router. Reservations, Rules, Recordings and Library are
// required.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Reservations == nil || deps.Rules == nil || deps.Recordings == nil || deps.Library == nil {
		return nil, errors.New("api: reservations, rules, recordings and library are required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        cfg.TracingService,
		EnableLogging:         true,
		RateLimit:             cfg.RateLimit,
	})
	s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, CodeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, CodeInvalid, "")
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/reserves", func(r chi.Router) {
			r.Get("/", s.handleListReserves)
			r.Post("/", s.handleAddReserve)
			r.Get("/counts", s.handleReserveCounts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetReserve)
				r.Put("/", s.handleEditReserve)
				r.Delete("/", s.handleCancelReserve)
				r.Put("/skip", s.handleSkipReserve)
				r.Delete("/skip", s.handleRemoveSkip)
				r.Delete("/overlap", s.handleRemoveOverlap)
			})
		})
		r.Post("/scheduler/recompute", s.handleRecompute)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleAddRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
				r.Put("/enable", s.handleSetRuleEnabled(true))
				r.Put("/disable", s.handleSetRuleEnabled(false))
			})
		})

		r.Get("/recording", s.handleActiveRecordings)
		r.Delete("/recording/{id}", s.handleStopRecording)

		r.Get("/recorded", s.handleListRecorded)
		r.Get("/recorded/{id}", s.handleGetRecorded)

		r.Post("/guide", s.handleImportGuide)
		r.Post("/encode/cleanup", s.handleEncodeCleanup)
	})
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

// decodeJSON strictly decodes a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode body: trailing data")
	}
	return nil
}
