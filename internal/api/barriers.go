package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatewise/gatewise-core/internal/barrier"
	"github.com/gatewise/gatewise-core/internal/device"
)

// commandRequest is the optional body for barrier command endpoints.
// When correlation_id is omitted a fresh one is generated, so simple
// callers can POST with an empty body.
type commandRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// parseCommandRequest reads the optional command body. An empty body is
// valid; malformed JSON is not.
func parseCommandRequest(r *http.Request) (commandRequest, error) {
	var req commandRequest

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	return req, nil
}

// writeCommandResult maps a command result to an HTTP response. An
// unknown device or lane is a 404; every other outcome, including a
// failed actuation, is reported in the result body with a 200.
func writeCommandResult(w http.ResponseWriter, result barrier.Result) {
	if !result.Success && result.Code == barrier.CodeDeviceNotFound {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBarrierOpen(w http.ResponseWriter, r *http.Request) {
	s.handleBarrierCommand(w, r, barrier.ActionOpen)
}

func (s *Server) handleBarrierClose(w http.ResponseWriter, r *http.Request) {
	s.handleBarrierCommand(w, r, barrier.ActionClose)
}

func (s *Server) handleBarrierCommand(w http.ResponseWriter, r *http.Request, action barrier.Action) {
	if s.hardware == nil {
		writeInternalError(w, "hardware manager not available")
		return
	}

	req, err := parseCommandRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = device.GenerateID()
	}

	id := chi.URLParam(r, "id")

	var result barrier.Result
	if action == barrier.ActionOpen {
		result = s.hardware.Open(r.Context(), id, req.CorrelationID)
	} else {
		result = s.hardware.Close(r.Context(), id, req.CorrelationID)
	}
	writeCommandResult(w, result)
}

func (s *Server) handleLaneOpen(w http.ResponseWriter, r *http.Request) {
	s.handleLaneCommand(w, r, barrier.ActionOpen)
}

func (s *Server) handleLaneClose(w http.ResponseWriter, r *http.Request) {
	s.handleLaneCommand(w, r, barrier.ActionClose)
}

func (s *Server) handleLaneCommand(w http.ResponseWriter, r *http.Request, action barrier.Action) {
	if s.hardware == nil {
		writeInternalError(w, "hardware manager not available")
		return
	}

	req, err := parseCommandRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = device.GenerateID()
	}

	laneID := chi.URLParam(r, "laneID")

	var result barrier.Result
	if action == barrier.ActionOpen {
		result = s.hardware.OpenByLane(r.Context(), laneID, req.CorrelationID)
	} else {
		result = s.hardware.CloseByLane(r.Context(), laneID, req.CorrelationID)
	}
	writeCommandResult(w, result)
}

// handleBarrierState returns the live controller state for one barrier.
func (s *Server) handleBarrierState(w http.ResponseWriter, r *http.Request) {
	if s.hardware == nil {
		writeInternalError(w, "hardware manager not available")
		return
	}

	id := chi.URLParam(r, "id")
	state, ok := s.hardware.StateOf(r.Context(), id)
	if !ok {
		writeNotFound(w, "barrier not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"state":     state,
	})
}

// handleBarrierConnectivity returns the connectivity snapshot for all barriers.
func (s *Server) handleBarrierConnectivity(w http.ResponseWriter, _ *http.Request) {
	if s.hardware == nil {
		writeInternalError(w, "hardware manager not available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connectivity": s.hardware.ConnectivitySnapshot(),
	})
}

// handleListCommands returns command ledger rows, newest first.
//
// Query parameters:
//   - device_id: restrict to one device
//   - limit: maximum rows (default 100)
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeInternalError(w, "command ledger not available")
		return
	}

	limit := parseLimit(r)

	var (
		commands []barrier.Command
		err      error
	)
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		commands, err = s.ledger.ListByDevice(r.Context(), deviceID, limit)
	} else {
		commands, err = s.ledger.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeInternalError(w, "failed to list commands")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"commands": commands, "count": len(commands)})
}

// handleGetCommand returns one command ledger row by correlation ID.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeInternalError(w, "command ledger not available")
		return
	}

	correlationID := chi.URLParam(r, "correlationID")
	cmd, err := s.ledger.GetByCorrelationID(r.Context(), correlationID)
	if err != nil {
		if errors.Is(err, barrier.ErrCommandNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		writeInternalError(w, "failed to get command")
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}
