package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// DeviceSummary describes one device in list and detail responses.
type DeviceSummary struct {
	Key       string           `json:"key"`
	Name      string           `json:"name"`
	Status    string           `json:"status"`
	Online    bool             `json:"online"`
	Connected bool             `json:"connected"`
	Stats     *limitimer.Stats `json:"stats,omitempty"`
}

// ActionResponse is the body of an accepted command.
type ActionResponse struct {
	Status    string `json:"status"`
	Device    string `json:"device"`
	Action    string `json:"action,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// TextRequest is the body of POST /devices/{key}/text.
type TextRequest struct {
	Text string `json:"text"`
}

// sourceAPI tags commands issued through this package in the journal.
const sourceAPI = "api"

func summarize(d Device, withStats bool) DeviceSummary {
	st := d.Status()
	sum := DeviceSummary{
		Key:       d.Key(),
		Name:      d.Name(),
		Status:    st.String(),
		Online:    st.IsOnline(),
		Connected: d.IsConnected(),
	}
	if withStats {
		stats := d.Stats()
		sum.Stats = &stats
	}
	return sum
}

// lookupDevice resolves {key} or writes a 404.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (Device, bool) {
	key := chi.URLParam(r, "key")
	d, ok := s.devices[key]
	if !ok {
		writeNotFound(w, "device not found: "+key)
	}
	return d, ok
}

// handleListDevices returns every configured device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := make([]DeviceSummary, 0, len(s.order))
	for _, key := range s.order {
		devices = append(devices, summarize(s.devices[key], false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device with its counters.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(d, true))
}

// handleGetDeviceState returns the device snapshot.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

// handleDeviceAction sends one catalog action.
//
// Responses:
//   - 202 the command was written to the link
//   - 404 unknown device or action
//   - 501 the action has no wire token
//   - 503 the link is down
func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "action")
	action, err := limitimer.ParseAction(name)
	if err != nil {
		writeNotFound(w, "unknown action: "+name)
		return
	}

	if err := d.SendAction(limitimer.WithSource(r.Context(), sourceAPI), action); err != nil {
		s.writeCommandError(w, d.Key(), err)
		return
	}

	writeJSON(w, http.StatusAccepted, ActionResponse{
		Status:    "accepted",
		Device:    d.Key(),
		Action:    string(action),
		RequestID: requestIDFrom(r.Context()),
	})
}

// handleDeviceText writes free text followed by the delimiter.
func (s *Server) handleDeviceText(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeBadRequest(w, "text is required")
		return
	}
	if strings.Contains(req.Text, limitimer.Delimiter) {
		writeBadRequest(w, "text must not contain the line delimiter")
		return
	}

	if err := d.SendText(limitimer.WithSource(r.Context(), sourceAPI), req.Text); err != nil {
		s.writeCommandError(w, d.Key(), err)
		return
	}

	writeJSON(w, http.StatusAccepted, ActionResponse{
		Status:    "accepted",
		Device:    d.Key(),
		RequestID: requestIDFrom(r.Context()),
	})
}

// handleDeviceResync republishes every field to observers.
func (s *Server) handleDeviceResync(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	if err := d.Resync(); err != nil {
		if errors.Is(err, limitimer.ErrQueueClosed) {
			writeUnavailable(w, "device is shutting down")
			return
		}
		s.logger.Error("resync failed", "device", d.Key(), "error", err)
		writeInternalError(w, "resync failed")
		return
	}

	writeJSON(w, http.StatusAccepted, ActionResponse{
		Status:    "accepted",
		Device:    d.Key(),
		Action:    "resync",
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeCommandError maps a driver error to an HTTP response.
func (s *Server) writeCommandError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, limitimer.ErrUnsupportedAction):
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, err.Error())
	case errors.Is(err, limitimer.ErrUnknownAction):
		writeNotFound(w, err.Error())
	case errors.Is(err, limitimer.ErrNotConnected):
		writeUnavailable(w, "device not connected")
	default:
		s.logger.Warn("command failed", "device", key, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	}
}
