package device

import (
	"time"

	"github.com/google/uuid"
)

// Status describes a device's connectivity state.
type Status string

// Device status values.
const (
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
	StatusUnregistered Status = "unregistered"
)

// ValidStatus reports whether s is a recognised device status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusUnregistered:
		return true
	}
	return false
}

// Protocol describes the transport a device connects through.
type Protocol string

// Supported device protocols.
const (
	ProtocolMQTT Protocol = "mqtt"
	ProtocolTCP  Protocol = "tcp"
)

// Project groups devices under an owner.
//
// Projects are configuration entities created outside the core (admin
// tooling); the core only reads them, chiefly to resolve the owner email
// for notification actions.
type Project struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"` // Public identifier, e.g. "PRJ-000001"
	Name       string    `json:"name"`
	OwnerEmail string    `json:"owner_email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Device is a registered field device.
//
// DeviceID is the public identifier devices present during authentication
// and the segment used in MQTT topics. DeviceIdentifier is the physical
// identifier (serial number, MAC). DeviceKey is the shared secret checked
// against authentication requests.
type Device struct {
	ID               string     `json:"id"`
	ProjectID        string     `json:"project_id"`
	DeviceID         string     `json:"device_id"`
	DeviceIdentifier string     `json:"device_identifier"`
	DeviceKey        string     `json:"-"` // Never serialised to API responses
	Name             string     `json:"name"`
	DeviceType       string     `json:"device_type"`
	ProtocolType     Protocol   `json:"protocol_type"`
	Status           Status     `json:"status"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DeepCopy returns an independent copy of the device.
// Pointer fields hold immutable values (time.Time), so a field-wise copy
// with a fresh LastSeen pointer is sufficient.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.LastSeen != nil {
		t := *d.LastSeen
		cpy.LastSeen = &t
	}
	return &cpy
}

// Sensor is a named value channel on a device.
//
// ValueKey is the lookup key into a raw telemetry payload; SensorType and
// Unit are descriptive only and never interpreted during ingestion.
type Sensor struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"` // Device row ID, not the public DeviceID
	Name       string    `json:"name"`
	SensorType string    `json:"sensor_type"`
	Unit       string    `json:"unit,omitempty"`
	ValueKey   string    `json:"value_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// Actuator is a controllable channel on a device.
//
// CommandKey identifies the control channel in outbound command payloads.
// CurrentState is mutated only by successful command delivery.
type Actuator struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Name         string    `json:"name"`
	ActuatorType string    `json:"actuator_type"`
	CommandKey   string    `json:"command_key"`
	CurrentState *string   `json:"current_state,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GenerateID returns a new unique identifier for a row.
func GenerateID() string {
	return uuid.New().String()
}
