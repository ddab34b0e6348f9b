// Package influxdb provides the optional time-series mirror for NovaCloud Core.
//
// It wraps the official influxdb-client-go v2 library. SQLite remains the
// system of record for all sensor readings; when the mirror is enabled,
// numeric readings and device status transitions are additionally written
// to InfluxDB for long-range queries and dashboarding.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("DEV-000001", "temperature", 21.5, time.Now())
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly. A failed or absent mirror never blocks ingestion.
package influxdb
