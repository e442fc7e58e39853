// Package metrics samples the synchronized device snapshot into a
// time-series sink on a fixed interval.
//
// Per-breaker and per-CT power and daily energy land in the "energy"
// measurement, hub and panel telemetry in "device_metrics", and breaker
// position changes in "breaker_events". The sink is normally the batched
// InfluxDB client from internal/infrastructure/influxdb.
package metrics
