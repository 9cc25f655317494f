// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ManuGH/pvrd/internal/audit"
	"github.com/ManuGH/pvrd/internal/reserve"
)

func (s *Server) handleListReserves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := reserve.ListFilter{Status: reserve.Status(q.Get("status"))}
	switch f.Status {
	case "", reserve.StatusNormal, reserve.StatusConflict, reserve.StatusSkip, reserve.StatusOverlap:
	default:
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, "unknown status "+strconv.Quote(string(f.Status)))
		return
	}
	if raw := q.Get("ruleId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeProblem(w, r, http.StatusBadRequest, CodeInvalid, "invalid ruleId")
			return
		}
		f.RuleID = id
	}
	var err error
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	if f.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Reservations.List(f))
}

func (s *Server) handleReserveCounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Reservations.Counts())
}

func (s *Server) handleAddReserve(w http.ResponseWriter, r *http.Request) {
	var req reserve.ManualRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	id, err := s.deps.Reservations.AddManual(r.Context(), req)
	s.deps.Audit.Request(r, audit.EventReserveAdd, reserveResource(id), err,
		map[string]string{"program_id": strconv.FormatInt(req.ProgramID, 10)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleGetReserve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	res, err := s.deps.Reservations.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEditReserve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	var opts reserve.Options
	if err := decodeJSON(w, r, &opts); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	err = s.deps.Reservations.Edit(r.Context(), id, opts)
	s.deps.Audit.Request(r, audit.EventReserveEdit, reserveResource(id), err, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutateReserve runs a parameterless reservation operation on {id}.
func (s *Server) mutateReserve(typ audit.EventType, op func(ctx context.Context, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
			return
		}
		err = op(r.Context(), id)
		s.deps.Audit.Request(r, typ, reserveResource(id), err, nil)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCancelReserve(w http.ResponseWriter, r *http.Request) {
	s.mutateReserve(audit.EventReserveCancel, s.deps.Reservations.Cancel)(w, r)
}

func (s *Server) handleSkipReserve(w http.ResponseWriter, r *http.Request) {
	s.mutateReserve(audit.EventReserveSkip, s.deps.Reservations.Skip)(w, r)
}

func (s *Server) handleRemoveSkip(w http.ResponseWriter, r *http.Request) {
	s.mutateReserve(audit.EventReserveUnskip, s.deps.Reservations.RemoveSkip)(w, r)
}

func (s *Server) handleRemoveOverlap(w http.ResponseWriter, r *http.Request) {
	s.mutateReserve(audit.EventReserveOverlap, s.deps.Reservations.RemoveOverlap)(w, r)
}

// handleRecompute runs a pass synchronously. A busy store is reported as 409.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Reservations.Recompute(r.Context(), "api.recompute")
	s.deps.Audit.Request(r, audit.EventRecompute, "scheduler", err, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Reservations.Counts())
}

func reserveResource(id int64) string { return "reserve/" + strconv.FormatInt(id, 10) }
