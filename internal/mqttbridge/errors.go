package mqttbridge

import "errors"

var (
	// ErrUnknownDevice indicates a message arrived for a device ID that
	// is not registered.
	ErrUnknownDevice = errors.New("mqttbridge: unknown device")

	// ErrInvalidPayload indicates a message payload could not be parsed.
	ErrInvalidPayload = errors.New("mqttbridge: invalid payload")
)
