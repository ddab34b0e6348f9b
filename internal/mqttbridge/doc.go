// Package mqttbridge routes MQTT traffic between field devices and the
// telemetry normalizer.
//
// Devices publish flat JSON payloads to {prefix}devices/{id}/data and
// status objects to {prefix}devices/{id}/status; the bridge subscribes
// to both wildcards, resolves the device from the topic, and delegates
// persistence to the normalizer. Commands and configuration flow the
// other way, to {prefix}devices/{id}/command and .../config.
package mqttbridge
