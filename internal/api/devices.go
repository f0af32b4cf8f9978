package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatewise/gatewise-core/internal/device"
)

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - kind: filter by device kind (barrier, lpr, kiosk)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if kindStr := r.URL.Query().Get("kind"); kindStr != "" {
		devices := s.registry.ListByKind(device.Kind(kindStr))
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices := s.registry.ListDevices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}
