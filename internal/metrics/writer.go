package metrics

import (
	"context"
	"time"

	"github.com/nerrad567/leviton-sync/internal/energy"
	"github.com/nerrad567/leviton-sync/internal/store"
)

const defaultInterval = 30 * time.Second

// Sink receives the sampled points. Satisfied by infrastructure/influxdb.Client.
type Sink interface {
	WriteEnergyMetric(deviceID string, kind string, powerWatts float64, energyKWh float64)
	WriteDeviceMetric(deviceID string, measurement string, value float64)
	WriteBreakerEvent(breakerID string, position string)
}

// Logger is the minimal logging surface used by the writer.
type Logger interface {
	Debug(msg string, args ...any)
}

// Writer periodically samples the device snapshot into the time-series sink.
//
// Power and daily energy are written as gauges every interval. Breaker
// position changes are written as events, detected by diffing currentState
// between samples so a trip surfaces even if it reverts before the next tick
// of a dashboard query.
type Writer struct {
	sink     Sink
	store    *store.Store
	tracker  *energy.Tracker
	interval time.Duration
	logger   Logger

	lastState map[string]string
}

// New creates a Writer. A non-positive interval selects the default.
func New(sink Sink, st *store.Store, tracker *energy.Tracker, interval time.Duration, logger Logger) *Writer {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Writer{
		sink:      sink,
		store:     st,
		tracker:   tracker,
		interval:  interval,
		logger:    logger,
		lastState: make(map[string]string),
	}
}

// Run samples on a fixed interval until ctx is cancelled. The first sample
// happens immediately so dashboards populate without waiting a full interval.
func (w *Writer) Run(ctx context.Context) error {
	w.sample()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *Writer) sample() {
	whems := make(map[string]*store.Whem)
	panels := make(map[string]*store.Panel)
	breakers := make(map[string]*store.Breaker)
	cts := make(map[string]*store.Ct)
	w.store.View(func(d *store.Data) {
		for id, v := range d.Whems {
			whems[id] = v.Clone()
		}
		for id, v := range d.Panels {
			panels[id] = v.Clone()
		}
		for id, v := range d.Breakers {
			breakers[id] = v.Clone()
		}
		for id, v := range d.Cts {
			cts[id] = v.Clone()
		}
	})

	for id, b := range breakers {
		daily := derefOrZero(w.tracker.BreakerDailyEnergy(id, b))
		w.sink.WriteEnergyMetric(id, "breaker", b.Power+b.Power2, daily)

		if prev, seen := w.lastState[id]; b.CurrentState != "" && (!seen || prev != b.CurrentState) {
			if seen {
				w.sink.WriteBreakerEvent(id, b.CurrentState)
			}
			w.lastState[id] = b.CurrentState
		}
	}

	for id, c := range cts {
		daily := derefOrZero(w.tracker.CtDailyEnergy(id, c))
		w.sink.WriteEnergyMetric(id, "ct", c.ActivePower+c.ActivePower2, daily)
	}

	for id, h := range whems {
		w.sink.WriteDeviceMetric(id, "rms_voltage_a", h.RMSVoltageA)
		w.sink.WriteDeviceMetric(id, "rms_voltage_b", h.RMSVoltageB)
		w.sink.WriteDeviceMetric(id, "frequency_a", h.FrequencyA)
		w.sink.WriteDeviceMetric(id, "connected", boolGauge(h.Connected))
	}

	for id, p := range panels {
		w.sink.WriteDeviceMetric(id, "rms_voltage", p.RMSVoltage)
		w.sink.WriteDeviceMetric(id, "rms_voltage_2", p.RMSVoltage2)
		w.sink.WriteDeviceMetric(id, "connected", boolGauge(p.Connected))
	}

	if w.logger != nil {
		w.logger.Debug("metrics sample written", "breakers", len(breakers), "cts", len(cts))
	}
}

func derefOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
