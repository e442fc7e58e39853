package store

// Breaker currentState values reported by the Leviton service.
// The wire uses upper-snake strings; these cover every state observed
// across Gen 1 and Gen 2 firmware.
const (
	BreakerStateManualOn      = "MANUAL_ON"
	BreakerStateManualOff     = "MANUAL_OFF"
	BreakerStateCommunicating = "COMMUNICATING"
	BreakerStateNotComms      = "NOT_COMMUNICATING"
	BreakerStateCommsFailure  = "COMMUNICATION_FAILURE"
	BreakerStateSoftwareTrip  = "SOFTWARE_TRIP"
	BreakerStateGFCIFault     = "GFCI_FAULT"
	BreakerStateOverloadTrip  = "OVERLOAD_TRIP"
	BreakerStateShortCircuit  = "SHORT_CIRCUIT_TRIP"
	BreakerStateUpstreamFault = "UPSTREAM_FAULT"
	BreakerStateUndefined     = "UNDEFINED"
)

// Breaker remoteState values.
const (
	RemoteStateOn  = "REMOTE_ON"
	RemoteStateOff = "REMOTE_OFF"
)

// Panel updateAvailability value meaning no firmware update is pending.
const PanelUpToDate = "UP_TO_DATE"

// Whem bandwidth modes. Mode 1 (streaming) makes subsequent energy reads
// report period deltas instead of lifetime totals; mode 0 restores lifetime
// reporting after a settle delay. The hub auto-reverts 1 -> 2 within seconds.
const (
	BandwidthQuiet     = 0
	BandwidthStreaming = 1
	BandwidthSettled   = 2
)

// Residence is the root of ownership; hubs and panels belong to one residence.
type Residence struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Whem is a whole-home energy-monitoring hub. It owns zero or more Breakers
// (paired wirelessly) and zero or more CT channels.
type Whem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	Manufacturer string  `json:"manufacturer"`
	Serial       string  `json:"serial"`
	Version      string  `json:"version"`
	Downloaded   string  `json:"downloaded"` // staged firmware version, if any
	Connected    bool    `json:"connected"`
	Bandwidth    int     `json:"bandwidth"`
	RMSVoltageA  float64 `json:"rmsVoltageA"`
	RMSVoltageB  float64 `json:"rmsVoltageB"`
	FrequencyA   float64 `json:"frequencyA"`
	FrequencyB   float64 `json:"frequencyB"`
	ResidenceID  int     `json:"residenceId"`
}

// Panel is a breaker-panel-integrated monitoring device (DAU / second-gen
// load center) with directly wired Breakers.
type Panel struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	PackageVer         string  `json:"packageVer"`
	UpdateAvailability string  `json:"updateAvailability"`
	UpdateVersion      string  `json:"updateVersion"`
	Connected          bool    `json:"connected"`
	OnlineTime         string  `json:"onlineTime"`
	OfflineTime        string  `json:"offlineTime"`
	RMSVoltage         float64 `json:"rmsVoltage"`
	RMSVoltage2        float64 `json:"rmsVoltage2"`
	ResidenceID        int     `json:"residenceId"`
}

// Breaker is a single circuit breaker, smart or placeholder. Exactly one of
// IotWhemID / PanelID is set (neither if the parent fetch failed).
//
// Energy counters are pointers: nil means the service has never reported a
// value, which the energy accountant must distinguish from zero.
type Breaker struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Position     int    `json:"position"`
	Poles        int    `json:"poles"`
	Model        string `json:"model"`
	SerialNumber string `json:"serialNumber"`
	HWVersion    string `json:"hwVersion"`

	Power          float64 `json:"power"`
	Power2         float64 `json:"power2"`
	RMSCurrent     float64 `json:"rmsCurrent"`
	RMSCurrent2    float64 `json:"rmsCurrent2"`
	RMSVoltage     float64 `json:"rmsVoltage"`
	RMSVoltage2    float64 `json:"rmsVoltage2"`
	LineFrequency  float64 `json:"lineFrequency"`
	LineFrequency2 float64 `json:"lineFrequency2"`

	EnergyConsumption  *float64 `json:"energyConsumption"`
	EnergyConsumption2 *float64 `json:"energyConsumption2"`
	EnergyImport       *float64 `json:"energyImport"`

	CurrentState string `json:"currentState"`
	RemoteState  string `json:"remoteState"`
	CanRemoteOn  bool   `json:"canRemoteOn"`

	// RemoteStatePredicted marks RemoteState as a local optimistic prediction
	// made after issuing a remote command, not a confirmed report. Any merge
	// that carries remoteState from the service clears it.
	RemoteStatePredicted bool `json:"-"`

	IsSmart       bool `json:"smart"`
	IsPlaceholder bool `json:"placeholder"`

	IotWhemID string `json:"iotWhemId"`
	PanelID   string `json:"residentialBreakerPanelId"`
}

// Ct is a current-transformer sensing channel owned by a Whem, measuring
// circuits not covered by smart breakers.
type Ct struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Channel   int    `json:"channel"`
	UsageType string `json:"usageType"`

	ActivePower  float64 `json:"activePower"`
	ActivePower2 float64 `json:"activePower2"`
	RMSCurrent   float64 `json:"rmsCurrent"`
	RMSCurrent2  float64 `json:"rmsCurrent2"`

	EnergyConsumption  *float64 `json:"energyConsumption"`
	EnergyConsumption2 *float64 `json:"energyConsumption2"`
	EnergyImport       *float64 `json:"energyImport"`
	EnergyImport2      *float64 `json:"energyImport2"`

	IotWhemID string `json:"iotWhemId"`
}

// Clone creates an independent copy of the Breaker.
// Pointer-valued energy fields are duplicated so mutations to the copy
// do not affect the original.
func (b *Breaker) Clone() *Breaker {
	if b == nil {
		return nil
	}
	cpy := *b
	cpy.EnergyConsumption = cloneFloat(b.EnergyConsumption)
	cpy.EnergyConsumption2 = cloneFloat(b.EnergyConsumption2)
	cpy.EnergyImport = cloneFloat(b.EnergyImport)
	return &cpy
}

// Clone creates an independent copy of the Ct.
func (c *Ct) Clone() *Ct {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.EnergyConsumption = cloneFloat(c.EnergyConsumption)
	cpy.EnergyConsumption2 = cloneFloat(c.EnergyConsumption2)
	cpy.EnergyImport = cloneFloat(c.EnergyImport)
	cpy.EnergyImport2 = cloneFloat(c.EnergyImport2)
	return &cpy
}

// Clone creates an independent copy of the Whem.
func (w *Whem) Clone() *Whem {
	if w == nil {
		return nil
	}
	cpy := *w
	return &cpy
}

// Clone creates an independent copy of the Panel.
func (p *Panel) Clone() *Panel {
	if p == nil {
		return nil
	}
	cpy := *p
	return &cpy
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}
