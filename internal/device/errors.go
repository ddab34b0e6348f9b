package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device lookup finds no match.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID or
	// identifier already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrProjectNotFound is returned when a project lookup finds no match.
	ErrProjectNotFound = errors.New("device: project not found")

	// ErrSensorNotFound is returned when a sensor lookup finds no match.
	ErrSensorNotFound = errors.New("device: sensor not found")

	// ErrActuatorNotFound is returned when an actuator lookup finds no match.
	ErrActuatorNotFound = errors.New("device: actuator not found")

	// ErrAuthFailed is returned when a (device_id, device_key) pair does
	// not match a registered device.
	ErrAuthFailed = errors.New("device: authentication failed")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("device: invalid status")
)
