package mqtt

import (
	"fmt"
	"strings"
)

// Device message kinds carried in topic suffixes.
const (
	KindData    = "data"
	KindStatus  = "status"
	KindCommand = "command"
	KindConfig  = "config"
)

// deviceTopicParts is the number of slash-separated parts in a device topic
// after the prefix has been stripped: devices/{device_id}/{kind}
const deviceTopicParts = 3

// Topics builds NovaCloud MQTT topics under a configurable prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "novacloud/"}
//	topics.DeviceData("DEV-000001")  // "novacloud/devices/DEV-000001/data"
type Topics struct {
	// Prefix is prepended to every topic. Must end with "/" when non-empty.
	Prefix string
}

// DeviceData returns the inbound telemetry topic for a device.
//
// Example: novacloud/devices/DEV-000001/data
func (t Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%sdevices/%s/%s", t.Prefix, deviceID, KindData)
}

// DeviceStatus returns the inbound status topic for a device.
//
// Example: novacloud/devices/DEV-000001/status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%sdevices/%s/%s", t.Prefix, deviceID, KindStatus)
}

// DeviceCommand returns the outbound command topic for a device.
//
// Example: novacloud/devices/DEV-000001/command
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%sdevices/%s/%s", t.Prefix, deviceID, KindCommand)
}

// DeviceConfig returns the outbound configuration topic for a device.
//
// Example: novacloud/devices/DEV-000001/config
func (t Topics) DeviceConfig(deviceID string) string {
	return fmt.Sprintf("%sdevices/%s/%s", t.Prefix, deviceID, KindConfig)
}

// AllDeviceData returns a wildcard pattern matching all device data topics.
//
// Pattern: novacloud/devices/+/data
func (t Topics) AllDeviceData() string {
	return fmt.Sprintf("%sdevices/+/%s", t.Prefix, KindData)
}

// AllDeviceStatus returns a wildcard pattern matching all device status topics.
//
// Pattern: novacloud/devices/+/status
func (t Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%sdevices/+/%s", t.Prefix, KindStatus)
}

// SystemStatus returns the topic the core publishes its own status on.
//
// Example: novacloud/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix + "system/status"
}

// ParseDeviceTopic extracts the device ID and message kind from an inbound
// device topic. It returns ErrInvalidTopic for topics outside the prefix,
// topics with the wrong shape, or empty components.
//
//	id, kind, err := topics.ParseDeviceTopic("novacloud/devices/DEV-000001/data")
//	// id == "DEV-000001", kind == "data"
func (t Topics) ParseDeviceTopic(topic string) (deviceID, kind string, err error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown prefix in %q", ErrInvalidTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != deviceTopicParts || parts[0] != "devices" {
		return "", "", fmt.Errorf("%w: unexpected shape in %q", ErrInvalidTopic, topic)
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: empty component in %q", ErrInvalidTopic, topic)
	}

	return parts[1], parts[2], nil
}
