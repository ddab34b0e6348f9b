package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// ValueType discriminates which value slot of a SensorData row is set.
type ValueType string

// Sensor data value types.
const (
	TypeFloat   ValueType = "float"
	TypeBoolean ValueType = "boolean"
	TypeString  ValueType = "string"
)

// SensorData is one immutable sensor reading. Exactly one of the three
// value slots is non-nil, discriminated by ValueType. Rows are created
// only by the Normalizer and never mutated afterwards.
type SensorData struct {
	ID        string    `json:"id"`
	SensorID  string    `json:"sensor_id"`
	Timestamp time.Time `json:"timestamp"`
	ValueType ValueType `json:"value_type"`

	ValueFloat  *float64 `json:"value_float,omitempty"`
	ValueString *string  `json:"value_string,omitempty"`
	ValueBool   *bool    `json:"value_boolean,omitempty"`
}

// Value returns the populated slot as an untyped value.
func (d *SensorData) Value() any {
	switch d.ValueType {
	case TypeFloat:
		if d.ValueFloat != nil {
			return *d.ValueFloat
		}
	case TypeBoolean:
		if d.ValueBool != nil {
			return *d.ValueBool
		}
	case TypeString:
		if d.ValueString != nil {
			return *d.ValueString
		}
	}
	return nil
}

// newID returns a new sensor data row identifier.
func newID() string {
	return "sd-" + uuid.New().String()
}
