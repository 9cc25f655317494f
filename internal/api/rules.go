// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ManuGH/pvrd/internal/audit"
	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/log"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.deps.Rules.GetRules()
	if rules == nil {
		rules = []dvr.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule dvr.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	id, err := s.deps.Rules.AddRule(rule)
	s.deps.Audit.Request(r, audit.EventRuleAdd, ruleResource(id), err, map[string]string{"name": rule.Name})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.Info().Int64(log.FieldRuleID, id).Str(log.FieldEvent, "rule.created").Msg("rule created")
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	rule, ok := s.deps.Rules.GetRule(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %d", dvr.ErrRuleNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	var rule dvr.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	err = s.deps.Rules.UpdateRule(id, rule)
	s.deps.Audit.Request(r, audit.EventRuleUpdate, ruleResource(id), err, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
		return
	}
	err = s.deps.Rules.DeleteRule(id)
	s.deps.Audit.Request(r, audit.EventRuleDelete, ruleResource(id), err, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRuleEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, CodeInvalid, err.Error())
			return
		}
		err = s.deps.Rules.SetEnabled(id, enabled)
		typ := audit.EventRuleDisable
		if enabled {
			typ = audit.EventRuleEnable
		}
		s.deps.Audit.Request(r, typ, ruleResource(id), err, nil)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ruleResource(id int64) string { return "rule/" + strconv.FormatInt(id, 10) }
