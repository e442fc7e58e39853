package energy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/leviton-sync/internal/store"
)

// Logger is the logging interface used by the tracker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// breakerEnergyKeys maps each breaker lifetime field to its cache-key
// suffix. The suffix joins the breaker id to form the repository key.
var breakerEnergyKeys = []struct {
	suffix string
	get    func(*store.Breaker) *float64
	set    func(*store.Breaker, float64)
}{
	{"", func(b *store.Breaker) *float64 { return b.EnergyConsumption },
		func(b *store.Breaker, v float64) { b.EnergyConsumption = &v }},
	{"_2", func(b *store.Breaker) *float64 { return b.EnergyConsumption2 },
		func(b *store.Breaker, v float64) { b.EnergyConsumption2 = &v }},
	{"_import", func(b *store.Breaker) *float64 { return b.EnergyImport },
		func(b *store.Breaker, v float64) { b.EnergyImport = &v }},
}

var ctEnergyKeys = []struct {
	suffix string
	get    func(*store.Ct) *float64
	set    func(*store.Ct, float64)
}{
	{"", func(c *store.Ct) *float64 { return c.EnergyConsumption },
		func(c *store.Ct, v float64) { c.EnergyConsumption = &v }},
	{"_2", func(c *store.Ct) *float64 { return c.EnergyConsumption2 },
		func(c *store.Ct, v float64) { c.EnergyConsumption2 = &v }},
	{"_import", func(c *store.Ct) *float64 { return c.EnergyImport },
		func(c *store.Ct, v float64) { c.EnergyImport = &v }},
	{"_import_2", func(c *store.Ct) *float64 { return c.EnergyImport2 },
		func(c *store.Ct, v float64) { c.EnergyImport2 = &v }},
}

// Tracker owns the energy bookkeeping: it corrects delta readings that
// leak through the REST API after restarts, maintains the persisted
// lifetime cache, snapshots daily baselines at local midnight, and derives
// daily consumption figures from lifetime counters.
type Tracker struct {
	repo   Repository
	store  *store.Store
	loc    *time.Location
	logger Logger

	// High-water marks for monotonic outputs. In-memory only; resets on
	// restart, when fresh REST values carry no accumulation drift.
	hwMu      sync.Mutex
	highWater map[string]float64
}

// NewTracker creates a tracker over the given store and repository.
// loc is the local timezone used for baseline date stamping.
func NewTracker(repo Repository, st *store.Store, loc *time.Location, logger Logger) *Tracker {
	if logger == nil {
		logger = noopLogger{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		repo:      repo,
		store:     st,
		loc:       loc,
		logger:    logger,
		highWater: make(map[string]float64),
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// CorrectLifetimeValues detects delta readings among the store's current
// energy values and corrects them against the persisted lifetime cache.
//
// When a hub is left in streaming mode (by a previous session that died
// before resetting bandwidth), the REST API reports period deltas instead
// of lifetime totals. A reading below half the cached lifetime is such a
// delta; the true lifetime is the cache plus the delta. Readings at or
// above the cache advance it.
func (t *Tracker) CorrectLifetimeValues(ctx context.Context) error {
	cached, err := t.repo.LoadLifetime(ctx)
	if err != nil {
		return fmt.Errorf("loading lifetime cache: %w", err)
	}

	changed := false
	t.store.Update(func(d *store.Data) {
		for id, breaker := range d.Breakers {
			for _, field := range breakerEnergyKeys {
				val := field.get(breaker)
				if val == nil {
					continue
				}
				key := id + field.suffix
				if corrected, ok := correctValue(*val, cached, key); ok {
					t.logger.Debug("corrected delta energy reading",
						"key", key, "reported", *val, "corrected", corrected)
					field.set(breaker, corrected)
					changed = true
				} else if prev, ok := cached[key]; !ok || *val > prev {
					cached[key] = *val
					changed = true
				}
			}
		}
		for _, ct := range d.Cts {
			for _, field := range ctEnergyKeys {
				val := field.get(ct)
				if val == nil {
					continue
				}
				key := fmt.Sprintf("ct_%d%s", ct.ID, field.suffix)
				if corrected, ok := correctValue(*val, cached, key); ok {
					t.logger.Debug("corrected delta energy reading",
						"key", key, "reported", *val, "corrected", corrected)
					field.set(ct, corrected)
					changed = true
				} else if prev, ok := cached[key]; !ok || *val > prev {
					cached[key] = *val
					changed = true
				}
			}
		}
	})

	if !changed {
		return nil
	}
	if err := t.repo.SaveLifetime(ctx, cached); err != nil {
		return fmt.Errorf("saving lifetime cache: %w", err)
	}
	return nil
}

// correctValue applies the delta heuristic for one reading. It returns the
// corrected lifetime and true when the reading is a sub-half-cache delta;
// the corrected value is also written back into the cache.
func correctValue(reported float64, cached map[string]float64, key string) (float64, bool) {
	prev, ok := cached[key]
	if !ok || reported >= prev*0.5 {
		return 0, false
	}
	corrected := round3(prev + reported)
	cached[key] = corrected
	return corrected, true
}

// SaveLifetimeEnergy persists every current lifetime counter, replacing
// cache entries for devices still present.
func (t *Tracker) SaveLifetimeEnergy(ctx context.Context) error {
	values := make(map[string]float64)
	t.store.View(func(d *store.Data) {
		for id, breaker := range d.Breakers {
			for _, field := range breakerEnergyKeys {
				if val := field.get(breaker); val != nil {
					values[id+field.suffix] = *val
				}
			}
		}
		for _, ct := range d.Cts {
			for _, field := range ctEnergyKeys {
				if val := field.get(ct); val != nil {
					values[fmt.Sprintf("ct_%d%s", ct.ID, field.suffix)] = *val
				}
			}
		}
	})
	if err := t.repo.SaveLifetime(ctx, values); err != nil {
		return fmt.Errorf("saving lifetime energy: %w", err)
	}
	return nil
}

// SnapshotDailyBaselines records each device's current lifetime energy as
// its baseline for the day. Two-pole breakers and dual-leg CTs sum their
// legs so daily figures cover the whole circuit. High-water marks from the
// previous day are cleared so daily figures can fall back to zero.
func (t *Tracker) SnapshotDailyBaselines() {
	today := time.Now().In(t.loc).Format("2006-01-02")
	t.hwMu.Lock()
	clear(t.highWater)
	t.hwMu.Unlock()
	t.store.Update(func(d *store.Data) {
		for id, breaker := range d.Breakers {
			if breaker.EnergyConsumption == nil {
				continue
			}
			energy := *breaker.EnergyConsumption
			if breaker.Poles == 2 && breaker.EnergyConsumption2 != nil {
				energy += *breaker.EnergyConsumption2
			}
			d.DailyBaselines[id] = round3(energy)
		}
		for _, ct := range d.Cts {
			var total float64
			if ct.EnergyConsumption != nil {
				total += *ct.EnergyConsumption
			}
			if ct.EnergyConsumption2 != nil {
				total += *ct.EnergyConsumption2
			}
			d.DailyBaselines[fmt.Sprintf("ct_%d", ct.ID)] = round3(total)
		}
		d.BaselineDate = today
	})
}

// LoadDailyBaselines restores the persisted baseline snapshot, or takes a
// fresh one when none exists or the stored snapshot is from an earlier day
// (meaning the engine was down across at least one midnight and the stale
// baselines would inflate daily figures).
func (t *Tracker) LoadDailyBaselines(ctx context.Context) error {
	stored, date, err := t.repo.LoadBaselines(ctx)
	if err != nil {
		return fmt.Errorf("loading daily baselines: %w", err)
	}

	today := time.Now().In(t.loc).Format("2006-01-02")
	if len(stored) > 0 && date == today {
		t.logger.Debug("restored daily baselines", "count", len(stored), "date", date)
		t.store.Update(func(d *store.Data) {
			d.DailyBaselines = stored
			d.BaselineDate = date
		})
		return nil
	}

	if len(stored) > 0 {
		t.logger.Info("stored baselines are stale, snapshotting fresh",
			"stored_date", date, "today", today)
	} else {
		t.logger.Debug("no stored baselines, snapshotting current values")
	}
	t.SnapshotDailyBaselines()
	return t.saveBaselines(ctx)
}

// HandleMidnight resets the daily baselines to current lifetime values and
// persists both the baseline snapshot and the lifetime cache.
func (t *Tracker) HandleMidnight(ctx context.Context) error {
	t.logger.Debug("midnight rollover: snapshotting daily baselines")
	t.SnapshotDailyBaselines()
	if err := t.saveBaselines(ctx); err != nil {
		return err
	}
	return t.SaveLifetimeEnergy(ctx)
}

func (t *Tracker) saveBaselines(ctx context.Context) error {
	var values map[string]float64
	var date string
	t.store.View(func(d *store.Data) {
		values = make(map[string]float64, len(d.DailyBaselines))
		for k, v := range d.DailyBaselines {
			values[k] = v
		}
		date = d.BaselineDate
	})
	if err := t.repo.SaveBaselines(ctx, values, date); err != nil {
		return fmt.Errorf("saving daily baselines: %w", err)
	}
	return nil
}

// DailyEnergy derives consumption since the last midnight rollover for one
// baseline key. Returns nil when the lifetime value or baseline is absent.
// Clock skew around the rollover can make the difference marginally
// negative; it is floored at zero and held at its high-water mark so the
// series never decreases between snapshots.
func (t *Tracker) DailyEnergy(key string, lifetime *float64) *float64 {
	if lifetime == nil {
		return nil
	}
	var baseline float64
	found := false
	t.store.View(func(d *store.Data) {
		baseline, found = d.DailyBaselines[key]
	})
	if !found {
		return nil
	}
	daily := t.ClampIncreasing(key, round2(math.Max(0, *lifetime-baseline)))
	return &daily
}

// BreakerDailyEnergy derives a breaker's consumption since the last rollover.
// Two-pole breakers sum both legs to match the whole-circuit baseline.
func (t *Tracker) BreakerDailyEnergy(id string, b *store.Breaker) *float64 {
	if b == nil || b.EnergyConsumption == nil {
		return nil
	}
	total := *b.EnergyConsumption
	if b.Poles == 2 && b.EnergyConsumption2 != nil {
		total += *b.EnergyConsumption2
	}
	return t.DailyEnergy(id, &total)
}

// CtDailyEnergy derives a CT's consumption since the last rollover, summing
// both legs to match the whole-circuit baseline.
func (t *Tracker) CtDailyEnergy(id string, c *store.Ct) *float64 {
	if c == nil || (c.EnergyConsumption == nil && c.EnergyConsumption2 == nil) {
		return nil
	}
	var total float64
	if c.EnergyConsumption != nil {
		total += *c.EnergyConsumption
	}
	if c.EnergyConsumption2 != nil {
		total += *c.EnergyConsumption2
	}
	return t.DailyEnergy("ct_"+id, &total)
}

// ClampIncreasing holds a monotonic output at its high-water mark.
// Sums of independently rounded legs can wobble by a thousandth between
// reports; consumers treating the series as total-increasing must never
// see a decrease.
func (t *Tracker) ClampIncreasing(key string, value float64) float64 {
	t.hwMu.Lock()
	defer t.hwMu.Unlock()
	if prev, ok := t.highWater[key]; ok && value < prev {
		t.logger.Debug("clamped decreasing energy value", "key", key, "value", value, "held", prev)
		return prev
	}
	t.highWater[key] = value
	return value
}
