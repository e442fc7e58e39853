package livesync

import (
	"strconv"
	"strings"
)

// breakerSubCutoff is the hub firmware version at which breaker updates
// stopped arriving nested inside hub notifications.
var breakerSubCutoff = [3]int{2, 0, 0}

// NeedsIndividualBreakerSubs reports whether a hub on the given firmware
// needs a separate push subscription per breaker.
//
// Firmware 2.0.0 and later no longer nests breaker updates inside the
// hub's own notifications, so each breaker must be subscribed to
// individually. Older firmware delivers everything through the hub
// subscription; subscribing per breaker there only duplicates traffic.
// A missing or unparseable version is treated as at-or-above the cutoff:
// a redundant subscription wastes bandwidth, but a missing one silently
// drops breaker updates.
func NeedsIndividualBreakerSubs(version string) bool {
	if version == "" {
		return true
	}
	fields := strings.Split(version, ".")
	var parts [3]int
	for i := 0; i < len(fields) && i < 3; i++ {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return true
		}
		parts[i] = n
	}
	for i := range parts {
		if parts[i] != breakerSubCutoff[i] {
			return parts[i] > breakerSubCutoff[i]
		}
	}
	return true
}
