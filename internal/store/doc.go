// Package store holds the canonical in-memory snapshot of one Leviton
// account's device graph: hubs (WHEM), panels (DAU), breakers, CT channels,
// and residences, plus the daily-baseline energy bookkeeping.
//
// # Concurrency
//
// One mutex guards the whole snapshot. Discovery swaps, live-notification
// merges, polling refreshes, and midnight rollovers are serialized through
// Store.Update/Store.View; there is no per-field locking. Read accessors
// return independent copies so callers can never mutate the snapshot from
// outside the lock.
//
// # Lifecycle
//
// The snapshot is created empty at engine start, wholly replaced by each
// topology discovery, incrementally mutated by live and polling merges, and
// discarded at shutdown. Only the energy bookkeeping (lifetime cache and
// daily baselines) is persisted, by the energy package.
package store
