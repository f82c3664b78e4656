// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/guardian/internal/log"
)

const (
	sseEventNotification = "notification"
	sseEventState        = "state"
)

// handleNotifications streams notifications and state changes as
// Server-Sent Events until the client goes away.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	notes, err := s.deps.Emergency.Notifications(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
		return
	}
	defer func() { _ = notes.Close() }()
	states, err := s.deps.Emergency.StateChanges(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
		return
	}
	defer func() { _ = states.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.FromContext(ctx).Warn().Err(err).Msg("response does not support streaming")
		return
	}

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-s.streams.Done():
			return
		case msg, ok := <-notes.C():
			if !ok {
				return
			}
			err = writeEvent(w, sseEventNotification, msg)
		case msg, ok := <-states.C():
			if !ok {
				return
			}
			err = writeEvent(w, sseEventState, msg)
		case <-heartbeat.C:
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			log.FromContext(ctx).Debug().Err(err).Msg("notification stream closed")
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

