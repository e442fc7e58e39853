package mqtt

import "fmt"

// Topic prefixes for the levsync MQTT surface.
//
// State topics use the flat scheme: levsync/{kind}/{id}/state where kind
// is one of breaker, ct, whem, panel. Command topics mirror the state
// scheme with a trailing verb.
const (
	// TopicPrefix is the base for all levsync topics.
	TopicPrefix = "levsync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "levsync/system"
)

// Topics provides builders for levsync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BreakerState("brk-1a2b")
//	// Returns: "levsync/breaker/brk-1a2b/state"
type Topics struct{}

// BreakerState returns the state topic for a breaker.
//
// Example: levsync/breaker/brk-1a2b/state
func (Topics) BreakerState(breakerID string) string {
	return fmt.Sprintf("%s/breaker/%s/state", TopicPrefix, breakerID)
}

// CtState returns the state topic for a CT channel.
//
// Example: levsync/ct/12/state
func (Topics) CtState(ctID string) string {
	return fmt.Sprintf("%s/ct/%s/state", TopicPrefix, ctID)
}

// WhemState returns the state topic for a WHEM hub.
//
// Example: levsync/whem/whem-9f3c/state
func (Topics) WhemState(whemID string) string {
	return fmt.Sprintf("%s/whem/%s/state", TopicPrefix, whemID)
}

// PanelState returns the state topic for a DAU panel.
//
// Example: levsync/panel/panel-7e21/state
func (Topics) PanelState(panelID string) string {
	return fmt.Sprintf("%s/panel/%s/state", TopicPrefix, panelID)
}

// BreakerSet returns the command topic for a breaker's remote switch.
// Payload is "on" or "off".
//
// Example: levsync/breaker/brk-1a2b/set
func (Topics) BreakerSet(breakerID string) string {
	return fmt.Sprintf("%s/breaker/%s/set", TopicPrefix, breakerID)
}

// BreakerTrip returns the command topic for remotely tripping a breaker.
//
// Example: levsync/breaker/brk-1a2b/trip
func (Topics) BreakerTrip(breakerID string) string {
	return fmt.Sprintf("%s/breaker/%s/trip", TopicPrefix, breakerID)
}

// BreakerIdentify returns the command topic for a breaker's locator LED.
//
// Example: levsync/breaker/brk-1a2b/identify
func (Topics) BreakerIdentify(breakerID string) string {
	return fmt.Sprintf("%s/breaker/%s/identify", TopicPrefix, breakerID)
}

// SystemStatus returns the system status topic. Carries "online"/"offline"
// retained; the offline message doubles as the LWT.
//
// Example: levsync/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemSync returns the sync-channel status topic ("live" or "polling").
//
// Example: levsync/system/sync
func (Topics) SystemSync() string {
	return fmt.Sprintf("%s/sync", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllBreakerSets returns a pattern matching all breaker switch commands.
//
// Pattern: levsync/breaker/+/set
func (Topics) AllBreakerSets() string {
	return fmt.Sprintf("%s/breaker/+/set", TopicPrefix)
}

// AllBreakerTrips returns a pattern matching all breaker trip commands.
//
// Pattern: levsync/breaker/+/trip
func (Topics) AllBreakerTrips() string {
	return fmt.Sprintf("%s/breaker/+/trip", TopicPrefix)
}

// AllBreakerIdentifies returns a pattern matching all locator commands.
//
// Pattern: levsync/breaker/+/identify
func (Topics) AllBreakerIdentifies() string {
	return fmt.Sprintf("%s/breaker/+/identify", TopicPrefix)
}

// AllBreakerStates returns a pattern matching all breaker state topics.
//
// Pattern: levsync/breaker/+/state
func (Topics) AllBreakerStates() string {
	return fmt.Sprintf("%s/breaker/+/state", TopicPrefix)
}

// AllTopics returns a pattern matching all levsync topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: levsync/#
func (Topics) AllTopics() string {
	return "levsync/#"
}
