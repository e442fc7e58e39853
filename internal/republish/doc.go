// Package republish mirrors the synchronized device snapshot onto a local
// MQTT broker and routes breaker commands from the broker back into the
// sync engine.
//
// # Topics
//
// State (retained JSON, published on change only):
//
//	levsync/breaker/{id}/state
//	levsync/ct/{id}/state
//	levsync/whem/{id}/state
//	levsync/panel/{id}/state
//	levsync/system/sync        ("live" or "polling")
//
// Commands (consumed):
//
//	levsync/breaker/{id}/set       (payload ON or OFF)
//	levsync/breaker/{id}/trip
//	levsync/breaker/{id}/identify
//
// Breaker and CT state payloads carry derived daily energy alongside the
// lifetime counters, so broker consumers never need the baseline bookkeeping.
package republish
