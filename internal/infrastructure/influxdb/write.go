package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording device telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "breaker-4af2")
//   - measurement: The metric name (e.g., "power_watts", "rms_voltage")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("whem-01", "rms_voltage", 241.3)
//	client.WriteDeviceMetric("breaker-4af2", "power_watts", 1840.0)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyMetric writes an energy measurement for a breaker or CT.
//
// Parameters:
//   - deviceID: Device identifier
//   - kind: Device kind for dashboard filtering ("breaker" or "ct")
//   - powerWatts: Current power draw in watts
//   - energyKWh: Energy consumed today in kWh (optional, use 0 if unknown)
func (c *Client) WriteEnergyMetric(deviceID string, kind string, powerWatts float64, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"power_watts": powerWatts,
	}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBreakerEvent writes a breaker position change.
//
// Positions come straight from the cloud payloads ("BranchOn",
// "BranchOff", "BranchFault Trip0", "SOFTWARE_TRIP", ...). Events are
// recorded as points rather than gauges so trips remain visible in
// dashboards even when the breaker recovers quickly.
//
// Parameters:
//   - breakerID: Breaker identifier
//   - position: The new position string
func (c *Client) WriteBreakerEvent(breakerID string, position string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"breaker_events",
		map[string]string{
			"device_id": breakerID,
		},
		map[string]interface{}{
			"position": position,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("sync_stats",
//	    map[string]string{"mode": "live"},
//	    map[string]interface{}{"notifications": 1420, "reconnects": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
