// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/guardian/internal/domain/emergency/arbiter"
)

const (
	codeBadRequest     = "bad_request"
	codeInvalidSource  = "invalid_source"
	codeNotFound       = "not_found"
	codeNothingToSend  = "nothing_to_resend"
	codeShuttingDown   = "shutting_down"
	codeNotImplemented = "not_configured"
	codeInternal       = "internal_error"
	codeUnavailable    = "unavailable"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// writeArbiterError maps facade errors onto status codes.
func writeArbiterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, arbiter.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, codeInvalidSource, err.Error())
	case errors.Is(err, arbiter.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, arbiter.ErrNothingToResend):
		writeError(w, http.StatusConflict, codeNothingToSend, err.Error())
	case errors.Is(err, arbiter.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, codeShuttingDown, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}
