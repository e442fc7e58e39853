// Package livesync keeps the device store current over the push channel.
//
// The channel needs constant care: the service silently stops pushing on
// hour-old connections, hubs stop emitting unless their bandwidth mode is
// re-toggled, and connections sometimes die without a close frame. The
// manager layers a proactive refresh that cycles the socket before the
// server cutoff, a silence watchdog that forces a reconnect when nothing
// has arrived for too long, and a periodic bandwidth toggle that keeps
// CT channels reporting.
//
// Recovery is single-flight: a watchdog firing while a disconnect-driven
// reconnect is underway (or the reverse) is suppressed, and deliberate
// teardowns remove the disconnect handler before closing the socket so
// they cannot masquerade as drops.
package livesync
