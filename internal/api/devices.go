package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecosync/core/internal/device"
	"github.com/ecosync/core/internal/engine"
	"github.com/ecosync/core/internal/protocol"
)

// handleListDevices returns all known devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.store.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device by ID, e.g. "controller" or
// "mixer.1".
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}

	snap, err := s.store.Device(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id.String())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListParameters returns the parameters of one device.
func (s *Server) handleListParameters(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}

	snap, err := s.store.Device(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device":     id.String(),
		"parameters": snap.Parameters,
	})
}

// writeParameterRequest is the request body for parameter writes.
type writeParameterRequest struct {
	Value *float64 `json:"value"`
}

// handleWriteParameter writes one named parameter on a device. The
// response reflects the controller's acknowledgement: the write either
// reached the device and was accepted, or this endpoint reports why not.
func (s *Server) handleWriteParameter(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	var req writeParameterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeBadRequest(w, `body must be {"value": <number>}`)
		return
	}

	if err := s.engine.WriteParameter(r.Context(), id, name, *req.Value); err != nil {
		s.writeEngineError(w, err)
		return
	}

	param, err := s.store.Parameter(id, name)
	if err != nil {
		writeInternalError(w, "write confirmed but parameter vanished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device":    id.String(),
		"parameter": param,
	})
}

// handleGetSchedule returns the weekly schedule for one circuit.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	typ, ok := scheduleType(w, r)
	if !ok {
		return
	}

	sched, err := s.store.Schedule(typ)
	if err != nil {
		writeNotFound(w, "schedule not read from device yet")
		return
	}
	writeJSON(w, http.StatusOK, scheduleBody(sched))
}

// scheduleWindow is one day/night window in a schedule update.
type scheduleWindow struct {
	Day   int `json:"day"`
	Start int `json:"start"`
	End   int `json:"end"`
	// Preset selects what the window sets: "day" or "night".
	Preset string `json:"preset"`
}

// putScheduleRequest is the request body for schedule updates. Windows
// are applied on top of the currently stored grid, so callers can adjust
// a single evening without resending the whole week.
type putScheduleRequest struct {
	Enabled *bool            `json:"enabled"`
	Windows []scheduleWindow `json:"windows"`
}

// handlePutSchedule updates a weekly schedule and writes it to the
// controller.
func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	typ, ok := scheduleType(w, r)
	if !ok {
		return
	}

	var req putScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sched, err := s.store.Schedule(typ)
	if err != nil {
		sched = &protocol.Schedule{Type: typ}
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}
	for _, win := range req.Windows {
		if win.Preset != "day" && win.Preset != "night" {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
				`window preset must be "day" or "night"`)
			return
		}
		if err := device.SetScheduleWindow(sched, win.Day, win.Start, win.End, win.Preset == "day"); err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
	}

	if err := s.engine.WriteSchedule(r.Context(), sched); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleBody(sched))
}

// handleGetMeter returns the host-side fuel meter total.
func (s *Server) handleGetMeter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"total_kg": s.store.Meter().Total(),
	})
}

// calibrateRequest is the request body for meter calibration.
type calibrateRequest struct {
	Total *float64 `json:"total"`
}

// handleCalibrateMeter sets the fuel meter to an absolute total,
// typically after a hopper refill.
func (s *Server) handleCalibrateMeter(w http.ResponseWriter, r *http.Request) {
	var req calibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Total == nil {
		writeBadRequest(w, `body must be {"total": <number>}`)
		return
	}
	s.store.Meter().Calibrate(*req.Total)
	writeJSON(w, http.StatusOK, map[string]any{"total_kg": s.store.Meter().Total()})
}

// handleResetMeter zeroes the fuel meter.
func (s *Server) handleResetMeter(w http.ResponseWriter, _ *http.Request) {
	s.store.Meter().Reset()
	writeJSON(w, http.StatusOK, map[string]any{"total_kg": 0.0})
}

// handleTriggerDiscovery schedules a full device rediscovery.
func (s *Server) handleTriggerDiscovery(w http.ResponseWriter, _ *http.Request) {
	s.engine.TriggerDiscovery()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
}

// controlRequest is the request body for POST /control.
type controlRequest struct {
	On *bool `json:"on"`
}

// handleControl switches the controller on or off.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		writeBadRequest(w, `body must be {"on": <bool>}`)
		return
	}

	if err := s.engine.SetControl(r.Context(), *req.On); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"on": *req.On})
}

// deviceID parses the {id} URL parameter, writing a 400 on failure.
func (s *Server) deviceID(w http.ResponseWriter, r *http.Request) (device.ID, bool) {
	id, err := device.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return device.ID{}, false
	}
	return id, true
}

// scheduleType parses the {type} URL parameter.
func scheduleType(w http.ResponseWriter, r *http.Request) (protocol.ScheduleType, bool) {
	switch chi.URLParam(r, "type") {
	case "heating":
		return protocol.ScheduleHeating, true
	case "water_heater":
		return protocol.ScheduleWaterHeater, true
	default:
		writeBadRequest(w, `schedule type must be "heating" or "water_heater"`)
		return 0, false
	}
}

// scheduleBody shapes a schedule for JSON responses.
func scheduleBody(sched *protocol.Schedule) map[string]any {
	return map[string]any{
		"type":    sched.Type.String(),
		"enabled": sched.Enabled,
		"slots":   sched.Slots,
	}
}

// writeEngineError maps engine and store failures onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrParameterNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, engine.ErrOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, engine.ErrWriteRejected):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, engine.ErrDeviceOffline):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	}
}
