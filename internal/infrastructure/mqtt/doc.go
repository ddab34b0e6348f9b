// Package mqtt provides the MQTT client wrapper for NovaCloud Core.
//
// It wraps paho.mqtt.golang with connection lifecycle management,
// subscription tracking for automatic re-subscription after reconnect,
// Last Will and Testament configuration on the system status topic, and
// panic-safe message handler dispatch.
//
// The Topics type builds and parses the per-device topic namespace:
//
//	{prefix}devices/{device_id}/data     device -> core telemetry
//	{prefix}devices/{device_id}/status   device -> core status
//	{prefix}devices/{device_id}/command  core -> device commands
//	{prefix}devices/{device_id}/config   core -> device configuration
//	{prefix}system/status                core availability (retained, LWT)
//
// The client is constructed explicitly via Connect and injected into the
// components that need it; there is no package-level singleton.
package mqtt
