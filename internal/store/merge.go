package store

// Live-notification payloads arrive as flat JSON objects with only the
// changed fields present. ApplyUpdate merges the known keys into the record
// and ignores everything else; the wire also carries bookkeeping keys
// (timestamps, server metadata) that the engine has no use for.
//
// The type-asserted conversions mirror how JSON decodes: numbers arrive as
// float64 regardless of the Go field type.

// ApplyUpdate merges a notification payload into the breaker.
// Returns true if any known field was present in the payload.
func (b *Breaker) ApplyUpdate(payload map[string]any) bool {
	changed := false
	for key, raw := range payload {
		switch key {
		case "name":
			b.Name, changed = asString(raw), true
		case "position":
			b.Position, changed = asInt(raw), true
		case "poles":
			b.Poles, changed = asInt(raw), true
		case "power":
			b.Power, changed = asFloat(raw), true
		case "power2":
			b.Power2, changed = asFloat(raw), true
		case "rmsCurrent":
			b.RMSCurrent, changed = asFloat(raw), true
		case "rmsCurrent2":
			b.RMSCurrent2, changed = asFloat(raw), true
		case "rmsVoltage":
			b.RMSVoltage, changed = asFloat(raw), true
		case "rmsVoltage2":
			b.RMSVoltage2, changed = asFloat(raw), true
		case "lineFrequency":
			b.LineFrequency, changed = asFloat(raw), true
		case "lineFrequency2":
			b.LineFrequency2, changed = asFloat(raw), true
		case "energyConsumption":
			b.EnergyConsumption, changed = asFloatPtr(raw), true
		case "energyConsumption2":
			b.EnergyConsumption2, changed = asFloatPtr(raw), true
		case "energyImport":
			b.EnergyImport, changed = asFloatPtr(raw), true
		case "currentState":
			b.CurrentState, changed = asString(raw), true
		case "remoteState":
			// A remoteState from the service is a confirmed report; it
			// overwrites any local optimistic prediction.
			b.RemoteState, changed = asString(raw), true
			b.RemoteStatePredicted = false
		case "canRemoteOn":
			b.CanRemoteOn, changed = asBool(raw), true
		}
	}
	return changed
}

// ApplyUpdate merges a notification payload into the CT channel.
// Returns true if any known field was present in the payload.
func (c *Ct) ApplyUpdate(payload map[string]any) bool {
	changed := false
	for key, raw := range payload {
		switch key {
		case "name":
			c.Name, changed = asString(raw), true
		case "channel":
			c.Channel, changed = asInt(raw), true
		case "usageType":
			c.UsageType, changed = asString(raw), true
		case "activePower":
			c.ActivePower, changed = asFloat(raw), true
		case "activePower2":
			c.ActivePower2, changed = asFloat(raw), true
		case "rmsCurrent":
			c.RMSCurrent, changed = asFloat(raw), true
		case "rmsCurrent2":
			c.RMSCurrent2, changed = asFloat(raw), true
		case "energyConsumption":
			c.EnergyConsumption, changed = asFloatPtr(raw), true
		case "energyConsumption2":
			c.EnergyConsumption2, changed = asFloatPtr(raw), true
		case "energyImport":
			c.EnergyImport, changed = asFloatPtr(raw), true
		case "energyImport2":
			c.EnergyImport2, changed = asFloatPtr(raw), true
		}
	}
	return changed
}

// ApplyUpdate merges a notification payload into the hub.
// Returns true if any known field was present in the payload.
func (w *Whem) ApplyUpdate(payload map[string]any) bool {
	changed := false
	for key, raw := range payload {
		switch key {
		case "name":
			w.Name, changed = asString(raw), true
		case "version":
			w.Version, changed = asString(raw), true
		case "downloaded":
			w.Downloaded, changed = asString(raw), true
		case "connected":
			w.Connected, changed = asBool(raw), true
		case "bandwidth":
			w.Bandwidth, changed = asInt(raw), true
		case "rmsVoltageA":
			w.RMSVoltageA, changed = asFloat(raw), true
		case "rmsVoltageB":
			w.RMSVoltageB, changed = asFloat(raw), true
		case "frequencyA":
			w.FrequencyA, changed = asFloat(raw), true
		case "frequencyB":
			w.FrequencyB, changed = asFloat(raw), true
		}
	}
	return changed
}

// ApplyUpdate merges a notification payload into the panel.
// Returns true if any known field was present in the payload.
func (p *Panel) ApplyUpdate(payload map[string]any) bool {
	changed := false
	for key, raw := range payload {
		switch key {
		case "name":
			p.Name, changed = asString(raw), true
		case "packageVer":
			p.PackageVer, changed = asString(raw), true
		case "updateAvailability":
			p.UpdateAvailability, changed = asString(raw), true
		case "updateVersion":
			p.UpdateVersion, changed = asString(raw), true
		case "connected":
			p.Connected, changed = asBool(raw), true
		case "onlineTime":
			p.OnlineTime, changed = asString(raw), true
		case "offlineTime":
			p.OfflineTime, changed = asString(raw), true
		case "rmsVoltage":
			p.RMSVoltage, changed = asFloat(raw), true
		case "rmsVoltage2":
			p.RMSVoltage2, changed = asFloat(raw), true
		}
	}
	return changed
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asFloatPtr(v any) *float64 {
	if v == nil {
		return nil
	}
	f := asFloat(v)
	return &f
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}
