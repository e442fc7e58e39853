// Package energy keeps the engine's energy figures coherent across the
// service's two reporting modes.
//
// The upstream hubs report energy either as absolute lifetime counters or
// as period deltas, depending on a bandwidth mode the service changes out
// from under us. This package disambiguates the two: REST readings are
// corrected against a persisted lifetime cache (a reading far below the
// cache is a delta, and the cache plus the delta is the true lifetime),
// while live-channel readings below the threshold are discarded outright
// since the next full push already includes them.
//
// It also owns daily consumption accounting: lifetime counters are
// snapshotted at local midnight as per-device baselines, and daily energy
// is the floored difference against the baseline. Baselines are persisted
// with their snapshot date so a restart across midnight takes a fresh
// snapshot instead of inflating the day's figures.
package energy
