// Package device provides the device registry for NovaCloud Core.
//
// It holds the configuration entities the ingestion paths read on every
// payload: projects, devices, sensors, and actuators. Configuration is
// created and edited outside the core; this package only reads it, plus
// the two fields the core owns — device status/last_seen and actuator
// current_state.
//
// # Architecture
//
//	Registry (cached, thread-safe)
//	    └── Repository (interface)
//	            └── SQLiteRepository
//
// The Registry fronts a Repository with an in-memory cache populated by
// RefreshCache on startup. Authentication, sensor resolution, and status
// bookkeeping on the ingestion hot path are served from the cache;
// lookups for rows registered since the last refresh fall through to the
// repository and are cached on the way out.
//
// # Identity
//
// Devices carry three identifiers: the row ID (internal primary key),
// the public DeviceID presented during authentication and used in MQTT
// topics (e.g. "DEV-000001"), and the physical DeviceIdentifier (serial
// number or MAC). The DeviceKey is the shared secret checked by
// Registry.Authenticate.
package device
