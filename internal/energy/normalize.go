package energy

import "github.com/nerrad567/leviton-sync/internal/store"

// wire keys of the breaker lifetime-energy fields as pushed over the
// live channel.
var breakerWireKeys = []struct {
	key string
	get func(*store.Breaker) *float64
}{
	{"energyConsumption", func(b *store.Breaker) *float64 { return b.EnergyConsumption }},
	{"energyConsumption2", func(b *store.Breaker) *float64 { return b.EnergyConsumption2 }},
	{"energyImport", func(b *store.Breaker) *float64 { return b.EnergyImport }},
}

var ctWireKeys = []struct {
	key string
	get func(*store.Ct) *float64
}{
	{"energyConsumption", func(c *store.Ct) *float64 { return c.EnergyConsumption }},
	{"energyConsumption2", func(c *store.Ct) *float64 { return c.EnergyConsumption2 }},
	{"energyImport", func(c *store.Ct) *float64 { return c.EnergyImport }},
	{"energyImport2", func(c *store.Ct) *float64 { return c.EnergyImport2 }},
}

// NormalizeBreakerEnergy rewrites a live-channel breaker payload in place
// so energy fields only ever carry lifetime values.
//
// The live channel usually pushes energy as a period delta, but a state
// flood replays the full lifetime value instead. A value above half the
// device's current lifetime (or any value when no lifetime is known yet)
// is a lifetime replacement and passes through untouched. Anything
// smaller is a delta the server's next full update already folds in, so
// the field is removed from the payload entirely. Accumulating deltas
// here double-counts against those full updates.
func NormalizeBreakerEnergy(payload map[string]any, current *store.Breaker) {
	for _, field := range breakerWireKeys {
		normalizeField(payload, field.key, field.get(current))
	}
}

// NormalizeCtEnergy is NormalizeBreakerEnergy for CT channel payloads,
// which carry an extra second-leg import field.
func NormalizeCtEnergy(payload map[string]any, current *store.Ct) {
	for _, field := range ctWireKeys {
		normalizeField(payload, field.key, field.get(current))
	}
}

func normalizeField(payload map[string]any, key string, current *float64) {
	raw, ok := payload[key]
	if !ok {
		return
	}
	value, ok := raw.(float64)
	if !ok {
		delete(payload, key)
		return
	}
	if current == nil || *current <= 0 {
		return
	}
	if value >= *current*0.5 {
		return
	}
	delete(payload, key)
}
