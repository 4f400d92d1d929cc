package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
)

// deviceView is the JSON representation of a unit served by the API.
// Loosely typed snapshot values are normalised so clients never deal
// with the backend's string/number inconsistencies.
type deviceView struct {
	DeviceID        string   `json:"device_id"`
	Name            string   `json:"name,omitempty"`
	Power           bool     `json:"power"`
	Mode            int      `json:"mode"`
	SupportedModes  []int    `json:"supported_modes,omitempty"`
	ColdSetpoint    *float64 `json:"cold_setpoint,omitempty"`
	HeatSetpoint    *float64 `json:"heat_setpoint,omitempty"`
	ColdSpeed       *int     `json:"cold_speed,omitempty"`
	HeatSpeed       *int     `json:"heat_speed,omitempty"`
	AvailableSpeeds *int     `json:"available_speeds,omitempty"`
	Scene           string   `json:"scene,omitempty"`
	SleepTime       *int     `json:"sleep_time,omitempty"`
	LocalTemp       *float64 `json:"local_temp,omitempty"`
	Units           *int     `json:"units,omitempty"`
	Connectivity    string   `json:"connectivity"`
	Pending         []string `json:"pending,omitempty"`
	ReceivedAt      string   `json:"received_at,omitempty"`
}

func buildDeviceView(deviceID string, state engine.EffectiveState) deviceView {
	snap := state.Snapshot
	view := deviceView{
		DeviceID:       deviceID,
		Name:           snap.Name,
		Power:          snap.PowerOn(),
		Mode:           snap.ModeCode(),
		SupportedModes: snap.Capabilities().SupportedModes(),
		Scene:          snap.Scene,
		Connectivity:   state.Connectivity.String(),
		Pending:        state.Pending,
	}
	if !state.ReceivedAt.IsZero() {
		view.ReceivedAt = state.ReceivedAt.UTC().Format(time.RFC3339)
	}
	view.ColdSetpoint = floatField(snap.ColdSetpoint)
	view.HeatSetpoint = floatField(snap.HeatSetpoint)
	view.ColdSpeed = intField(snap.ColdSpeed)
	view.HeatSpeed = intField(snap.HeatSpeed)
	view.AvailableSpeeds = intField(snap.AvailableSpeeds)
	view.SleepTime = intField(snap.SleepTime)
	view.LocalTemp = floatField(snap.LocalTemp)
	view.Units = intField(snap.Units)
	return view
}

func floatField(f hvac.FlexString) *float64 {
	v, ok := f.Float()
	if !ok {
		return nil
	}
	return &v
}

func intField(f hvac.FlexString) *int {
	v, ok := f.Int()
	if !ok {
		return nil
	}
	return &v
}

// handleListDevices returns the effective state of every known unit.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	ids := s.engine.Devices()
	views := make([]deviceView, 0, len(ids))
	for _, id := range ids {
		state, err := s.engine.EffectiveState(id)
		if err != nil {
			continue
		}
		views = append(views, buildDeviceView(id, state))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

// handleGetDevice returns the effective state of one unit.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.engine.EffectiveState(id)
	if err != nil {
		writeNotFound(w, "unknown device: "+id)
		return
	}
	writeJSON(w, http.StatusOK, buildDeviceView(id, state))
}

// handleGetConnectivity returns just the connectivity status of one unit.
func (s *Server) handleGetConnectivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.engine.Connectivity(id)
	if err != nil {
		writeNotFound(w, "unknown device: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":    id,
		"connectivity": status.String(),
	})
}

// handleGetHistory returns recent state history rows for one unit.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "history is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
	})
}

// commandRequest is the JSON body for POST /devices/{id}/commands.
// Exactly one value field is meaningful per command type.
type commandRequest struct {
	Type        string   `json:"type"`
	On          *bool    `json:"on,omitempty"`
	Mode        *int     `json:"mode,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Channel     string   `json:"channel,omitempty"`
	Speed       *int     `json:"speed,omitempty"`
	Scene       string   `json:"scene,omitempty"`
	Minutes     *int     `json:"minutes,omitempty"`
}

// handleCommand submits a command to the engine and returns the result
// together with the optimistic effective state.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	cmd, err := buildCommand(req)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.engine.SubmitCommand(r.Context(), id, cmd)
	if err != nil {
		writeCommandError(w, err)
		return
	}

	response := map[string]any{
		"command_id": result.ID,
		"applied":    result.Applied,
		"fields":     result.Fields,
	}
	if state, stateErr := s.engine.EffectiveState(id); stateErr == nil {
		response["state"] = buildDeviceView(id, state)
	}
	writeJSON(w, http.StatusAccepted, response)
}

// buildCommand translates a commandRequest into an engine command.
func buildCommand(req commandRequest) (engine.Command, error) {
	switch req.Type {
	case "power":
		if req.On == nil {
			return engine.Command{}, errors.New(`"on" is required for power commands`)
		}
		return engine.PowerCommand(*req.On), nil
	case "mode":
		if req.Mode == nil {
			return engine.Command{}, errors.New(`"mode" is required for mode commands`)
		}
		return engine.ModeCommand(*req.Mode), nil
	case "setpoint":
		if req.Temperature == nil {
			return engine.Command{}, errors.New(`"temperature" is required for setpoint commands`)
		}
		if req.Channel != "" {
			ch, err := parseChannel(req.Channel)
			if err != nil {
				return engine.Command{}, err
			}
			return engine.ChannelSetpointCommand(ch, *req.Temperature), nil
		}
		return engine.SetpointCommand(*req.Temperature), nil
	case "fan_speed":
		if req.Speed == nil {
			return engine.Command{}, errors.New(`"speed" is required for fan_speed commands`)
		}
		return engine.FanSpeedCommand(*req.Speed), nil
	case "scene":
		if req.Scene == "" {
			return engine.Command{}, errors.New(`"scene" is required for scene commands`)
		}
		return engine.SceneCommand(req.Scene), nil
	case "sleep_time":
		if req.Minutes == nil {
			return engine.Command{}, errors.New(`"minutes" is required for sleep_time commands`)
		}
		return engine.SleepTimeCommand(*req.Minutes), nil
	case "unoccupied_min":
		if req.Temperature == nil {
			return engine.Command{}, errors.New(`"temperature" is required for unoccupied_min commands`)
		}
		return engine.UnoccupiedMinCommand(*req.Temperature), nil
	case "unoccupied_max":
		if req.Temperature == nil {
			return engine.Command{}, errors.New(`"temperature" is required for unoccupied_max commands`)
		}
		return engine.UnoccupiedMaxCommand(*req.Temperature), nil
	default:
		return engine.Command{}, errors.New("unknown command type: " + req.Type)
	}
}

func parseChannel(name string) (hvac.Channel, error) {
	switch name {
	case "cold":
		return hvac.ChannelCold, nil
	case "heat":
		return hvac.ChannelHeat, nil
	default:
		return 0, errors.New(`channel must be "cold" or "heat"`)
	}
}

// handleTriggerPoll requests an immediate poll cycle. The poll is
// asynchronous; the response only acknowledges the request.
func (s *Server) handleTriggerPoll(w http.ResponseWriter, _ *http.Request) {
	s.engine.TriggerPoll()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "poll requested"})
}
