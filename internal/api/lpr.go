package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatewise/gatewise-core/internal/lpr"
)

// parseLimit reads the limit query parameter. Out-of-range values fall
// back to the repositories' defaults.
func parseLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	limit, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return limit
}

// handleListPlateEvents returns plate event ledger rows, newest first.
//
// Query parameters:
//   - lane_id: restrict to one lane
//   - plate: restrict to one normalized plate
//   - limit: maximum rows (default 100)
func (s *Server) handleListPlateEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeInternalError(w, "plate event ledger not available")
		return
	}

	limit := parseLimit(r)

	var (
		events []lpr.PlateEvent
		err    error
	)
	switch {
	case r.URL.Query().Get("lane_id") != "":
		events, err = s.events.ListByLane(r.Context(), r.URL.Query().Get("lane_id"), limit)
	case r.URL.Query().Get("plate") != "":
		plate := lpr.NormalizePlate(r.URL.Query().Get("plate"))
		events, err = s.events.ListByPlate(r.Context(), plate, limit)
	default:
		events, err = s.events.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeInternalError(w, "failed to list plate events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleGetPlateEvent returns one plate event by ID.
func (s *Server) handleGetPlateEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeInternalError(w, "plate event ledger not available")
		return
	}

	id := chi.URLParam(r, "id")
	event, err := s.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, lpr.ErrEventNotFound) {
			writeNotFound(w, "plate event not found")
			return
		}
		writeInternalError(w, "failed to get plate event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// linkSessionRequest is the body for PUT /plate-events/{id}/session.
type linkSessionRequest struct {
	SessionID string `json:"session_id"`
}

// handleLinkSession attaches a parking session ID to a plate event.
// The session itself lives in the management system; this layer only
// records the association.
func (s *Server) handleLinkSession(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeInternalError(w, "plate event ledger not available")
		return
	}

	var req linkSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeBadRequest(w, "session_id is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.events.LinkSession(r.Context(), id, req.SessionID); err != nil {
		if errors.Is(err, lpr.ErrEventNotFound) {
			writeNotFound(w, "plate event not found")
			return
		}
		writeInternalError(w, "failed to link session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":   id,
		"session_id": req.SessionID,
	})
}

// handleLPRStatuses returns connectivity for every LPR controller.
func (s *Server) handleLPRStatuses(w http.ResponseWriter, _ *http.Request) {
	if s.lprMgr == nil {
		writeInternalError(w, "lpr manager not available")
		return
	}

	statuses := s.lprMgr.GetAllStatuses()
	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses, "count": len(statuses)})
}

// handleTriggerCapture actively requests a recognition from one camera.
// A null capture means the device is unknown, the read failed, or the
// result fell below the confidence gate.
func (s *Server) handleTriggerCapture(w http.ResponseWriter, r *http.Request) {
	if s.lprMgr == nil {
		writeInternalError(w, "lpr manager not available")
		return
	}

	id := chi.URLParam(r, "id")
	capture := s.lprMgr.TriggerCapture(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"capture":   capture,
	})
}

// handleLastCapture returns the most recent accepted capture for one camera.
func (s *Server) handleLastCapture(w http.ResponseWriter, r *http.Request) {
	if s.lprMgr == nil {
		writeInternalError(w, "lpr manager not available")
		return
	}

	id := chi.URLParam(r, "id")
	capture := s.lprMgr.LastCapture(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"capture":   capture,
	})
}
