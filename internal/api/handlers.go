// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/guardian/internal/contacts"
	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/export"
	"github.com/ManuGH/guardian/internal/log"
)

const (
	maxBodyBytes        = 64 << 10
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type signalRequest struct {
	Source string `json:"source"`
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type exportResponse struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}

// decodeBody strictly decodes a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, codeBadRequest, "request body is empty")
		} else {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		}
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	src, err := model.ParseTriggerSource(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidSource, err.Error())
		return
	}
	res, err := s.deps.Emergency.SignalDanger(r.Context(), src)
	if err != nil {
		writeArbiterError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Emergency.CancelActiveSession(r.Context())
	if err != nil {
		writeArbiterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Emergency.CurrentSessionState())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Emergency.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeArbiterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Emergency.ResendFailed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeArbiterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "event log cannot be read back")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	entries, err := s.deps.History.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil || s.deps.ExportDir == "" {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "export is not configured")
		return
	}
	path := export.DefaultPath(s.deps.ExportDir, s.deps.Now())
	n, err := export.WriteJSON(r.Context(), s.deps.History, path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Path: path, Entries: n})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Locations == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "location history is not configured")
		return
	}
	var req locationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fix := model.Coordinates{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		FixedAt:   s.deps.Now().UTC(),
	}
	if !fix.Valid() {
		writeError(w, http.StatusBadRequest, codeBadRequest, "coordinates out of range")
		return
	}
	if err := s.deps.Locations.Record(r.Context(), fix); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Contacts == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "contact book is not configured")
		return
	}
	list, err := s.deps.Contacts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	if list == nil {
		list = []model.EmergencyContact{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleReplaceContacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Contacts == nil {
		writeError(w, http.StatusNotImplemented, codeNotImplemented, "contact book is not configured")
		return
	}
	var list []model.EmergencyContact
	if !decodeBody(w, r, &list) {
		return
	}
	if err := contacts.Validate(list); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if err := s.deps.Contacts.Replace(r.Context(), list); err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	log.FromContext(r.Context()).Info().
		Str(log.FieldEvent, "contacts.replaced").
		Int("count", len(list)).
		Msg("emergency contacts replaced")
	writeJSON(w, http.StatusOK, list)
}
