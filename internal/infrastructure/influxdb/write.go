package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading mirrors a numeric sensor reading to InfluxDB.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Only numeric readings are mirrored (boolean and string readings stay
// in SQLite only).
//
// Parameters:
//   - deviceID: Public device identifier (e.g., "DEV-000001")
//   - sensorKey: The sensor's value key (e.g., "temperature")
//   - value: The numeric reading
//   - timestamp: When the reading was recorded
//
// Example:
//
//	client.WriteSensorReading("DEV-000001", "temperature", 21.5, reading.Timestamp)
func (c *Client) WriteSensorReading(deviceID string, sensorKey string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_data",
		map[string]string{
			"device_id":  deviceID,
			"sensor_key": sensorKey,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceStatus records a device status transition.
//
// Status is stored as a numeric field (1 = online, 0 = offline) so it
// can be graphed and aggregated alongside sensor data.
func (c *Client) WriteDeviceStatus(deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	state := 0.0
	if online {
		state = 1.0
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
