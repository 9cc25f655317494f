// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/pvrd/internal/audit"
	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/metrics"
	"github.com/ManuGH/pvrd/internal/recorded"
	"github.com/ManuGH/pvrd/internal/recording"
)

const defaultRecordedPage = 50

func (s *Server) handleActiveRecordings(w http.ResponseWriter, r *http.Request) {
	active := s.deps.Recordings.Active()
	if active == nil {
		active = []recording.ActiveRecording{}
	}
	writeJSON(w, http.StatusOK, active)
}

// handleStopRecording ends the session of a reservation early. The
// reservation itself stays; cancel it to keep it from coming back.
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	found := false
	for _, a := range s.deps.Recordings.Active() {
		if a.ReserveID == id {
			found = true
			break
		}
	}
	if !found {
		writeProblem(w, r, http.StatusNotFound, CodeNotFound, fmt.Sprintf("reserve %d is not recording", id))
		return
	}
	err = s.deps.Recordings.StopRecording(r.Context(), id, "api.stop")
	s.deps.Audit.Request(r, audit.EventRecordingStop, reserveResource(id), err, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRecorded(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultRecordedPage)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	items, err := s.deps.Library.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []recorded.Recorded{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetRecorded(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	item, err := s.deps.Library.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleImportGuide ingests an XMLTV document and triggers a scheduler pass.
func (s *Server) handleImportGuide(w http.ResponseWriter, r *http.Request) {
	if s.deps.Guide == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, CodeUnavailable, "guide ingestion is not configured")
		return
	}
	start := time.Now()
	g, err := epg.ParseXMLTV(http.MaxBytesReader(w, r.Body, epg.MaxXMLTVSize))
	if err != nil {
		metrics.RecordGuideImport(0, err)
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	err = epg.Import(r.Context(), s.deps.Guide, g)
	metrics.RecordGuideImport(len(g.Programs), err)
	s.deps.Audit.Request(r, audit.EventGuideImport, "guide", err,
		map[string]string{"programs": strconv.Itoa(len(g.Programs))})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Reservations.Notify("epg.refresh")

	logger := log.WithContext(r.Context(), s.logger)
	logger.Info().
		Str(log.FieldEvent, "guide.imported").
		Int("channels", len(g.Channels)).
		Int("programs", len(g.Programs)).
		Int("skipped", g.Skipped).
		Dur("took", time.Since(start)).
		Msg("guide imported")
	writeJSON(w, http.StatusOK, map[string]int{
		"channels": len(g.Channels),
		"programs": len(g.Programs),
		"skipped":  g.Skipped,
	})
}

func (s *Server) handleEncodeCleanup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Maintenance == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, CodeUnavailable, "encode backend has no maintenance")
		return
	}
	res, err := s.deps.Maintenance.Cleanup(r.Context())
	s.deps.Audit.Request(r, audit.EventEncodeCleanup, "encode", err, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Removed == nil {
		res.Removed = []string{}
	}
	writeJSON(w, http.StatusOK, res)
}
