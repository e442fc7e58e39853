// Package discovery builds the device topology snapshot: it resolves the
// account's residences from its permission set, then walks each residence
// down to hubs, panels, breakers, and CT channels.
//
// A discovery run produces a complete snapshot that replaces the previous
// one wholesale. Partial results are expected and fine: any branch below
// the initial permissions fetch that fails is logged and skipped rather
// than failing the run.
package discovery
