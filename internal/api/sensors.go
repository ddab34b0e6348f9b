package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Miraitowa-la/novacloud-core/internal/device"
)

// defaultSensorDataPeriod is used when the period query parameter is
// absent or not one of the recognised windows.
const defaultSensorDataPeriod = "24h"

var sensorDataPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// handleSensorData returns readings for one sensor over a recent
// window, oldest first.
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "sensorID")

	sensor, err := s.devices.GetSensor(r.Context(), sensorID)
	if err != nil {
		if errors.Is(err, device.ErrSensorNotFound) {
			writeNotFound(w, "sensor not found")
			return
		}
		s.logger.Error("failed to load sensor", "sensor_id", sensorID, "error", err)
		writeInternalError(w, "failed to load sensor")
		return
	}

	period := r.URL.Query().Get("period")
	window, ok := sensorDataPeriods[period]
	if !ok {
		period = defaultSensorDataPeriod
		window = sensorDataPeriods[period]
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	data, err := s.telemetry.ListBySensorSince(r.Context(), sensor.ID, start, end)
	if err != nil {
		s.logger.Error("failed to query sensor data", "sensor_id", sensorID, "error", err)
		writeInternalError(w, "failed to query sensor data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor":     sensor,
		"data":       data,
		"count":      len(data),
		"period":     period,
		"start_time": start.Format(time.RFC3339),
		"end_time":   end.Format(time.RFC3339),
	})
}
