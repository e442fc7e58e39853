// Package engine orchestrates the sync lifecycle.
//
// Startup runs discovery, corrects persisted energy state, brings the
// live channel up, and restores daily baselines. From there two loops
// run until shutdown: a polling loop that covers whatever the live
// channel does not (everything when it is down, panel energy always),
// and a midnight loop that rolls the daily baselines over in the
// configured local timezone.
//
// The engine also fronts breaker control. Commands apply optimistically:
// the store reflects the commanded state immediately, marked predicted,
// and the next authoritative update confirms or corrects it.
package engine
