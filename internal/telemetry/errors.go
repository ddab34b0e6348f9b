package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrStoreFailed indicates the ingestion transaction could not be
	// committed; no partial data was written.
	ErrStoreFailed = errors.New("telemetry: storing sensor data failed")

	// ErrSensorDataNotFound is returned when a sensor data lookup finds
	// no match.
	ErrSensorDataNotFound = errors.New("telemetry: sensor data not found")

	// ErrInvalidStatus is returned when a device reports a status value
	// that is not recognised.
	ErrInvalidStatus = errors.New("telemetry: invalid status")
)
