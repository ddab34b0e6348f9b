package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
)

// handleListDevices returns every registered device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device with its sensors and actuators.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	dev, err := s.registry.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to load device", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load device")
		return
	}

	sensors, err := s.registry.SensorsByDevice(r.Context(), dev.ID)
	if err != nil {
		s.logger.Error("failed to load sensors", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load sensors")
		return
	}

	actuators, err := s.devices.ActuatorsByDevice(r.Context(), dev.ID)
	if err != nil {
		s.logger.Error("failed to load actuators", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load actuators")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":    dev,
		"sensors":   sensors,
		"actuators": actuators,
	})
}

// handleSendCommand forwards an operator command to the device's MQTT
// command topic. The body must be a JSON object carrying a "command"
// field; beyond that it passes through unmodified.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	dev, err := s.registry.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command transport not available")
		return
	}

	var command map[string]any
	if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if _, ok := command["command"]; !ok {
		writeBadRequest(w, "missing command field")
		return
	}

	body, err := json.Marshal(command)
	if err != nil {
		writeInternalError(w, "failed to encode command")
		return
	}
	if err := s.commands.PublishRawCommand(dev.DeviceID, body); err != nil {
		s.logger.Error("failed to publish command", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to send command")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "command sent",
		"device_id": dev.DeviceID,
		"command":   command,
	})
}

// handlePingDevice sends the built-in ping command to a device.
func (s *Server) handlePingDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	dev, err := s.registry.GetByDeviceID(r.Context(), deviceID)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command transport not available")
		return
	}

	ping, err := json.Marshal(map[string]any{
		"command":   "ping",
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		writeInternalError(w, "failed to encode ping")
		return
	}
	if err := s.commands.PublishRawCommand(dev.DeviceID, ping); err != nil {
		s.logger.Error("failed to publish ping", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to send ping")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "ping sent",
		"device_id": dev.DeviceID,
	})
}
