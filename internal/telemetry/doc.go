// Package telemetry implements the ingestion normalizer, the single
// choke point through which all device telemetry becomes durable.
//
// Both transports (TCP sessions and the MQTT bridge) hand raw flat
// key→value payloads to Normalizer.Ingest, which matches payload keys
// against the device's configured sensors, classifies each value by
// runtime type into exactly one slot (float, boolean, string), and
// persists the resulting SensorData rows together with the device's
// online status and last_seen in one transaction per payload.
//
// Writes are serialised per device with a keyed mutex, so concurrent
// traffic for the same device over both transports cannot interleave.
// After commit, the Normalizer fans out synchronously: numeric readings
// to the optional time-series mirror, events to the optional
// broadcaster, and every row — in insertion order — to the Sink (the
// rule engine).
package telemetry
