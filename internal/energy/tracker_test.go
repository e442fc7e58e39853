package energy

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/leviton-sync/internal/store"
)

type fakeRepo struct {
	lifetime      map[string]float64
	baselines     map[string]float64
	baselineDate  string
	lifetimeSaves int
	baselineSaves int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lifetime:  make(map[string]float64),
		baselines: make(map[string]float64),
	}
}

func (r *fakeRepo) LoadLifetime(context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(r.lifetime))
	for k, v := range r.lifetime {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) SaveLifetime(_ context.Context, values map[string]float64) error {
	r.lifetimeSaves++
	r.lifetime = make(map[string]float64, len(values))
	for k, v := range values {
		r.lifetime[k] = v
	}
	return nil
}

func (r *fakeRepo) LoadBaselines(context.Context) (map[string]float64, string, error) {
	out := make(map[string]float64, len(r.baselines))
	for k, v := range r.baselines {
		out[k] = v
	}
	return out, r.baselineDate, nil
}

func (r *fakeRepo) SaveBaselines(_ context.Context, values map[string]float64, date string) error {
	r.baselineSaves++
	r.baselines = make(map[string]float64, len(values))
	for k, v := range values {
		r.baselines[k] = v
	}
	r.baselineDate = date
	return nil
}

func fptr(v float64) *float64 { return &v }

func newTestTracker(repo Repository) (*Tracker, *store.Store) {
	st := store.New()
	return NewTracker(repo, st, time.UTC, nil), st
}

func TestCorrectLifetimeValues_DeltaCorrected(t *testing.T) {
	repo := newFakeRepo()
	repo.lifetime["brk-1"] = 3400.0
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", EnergyConsumption: fptr(0.25)}
	})

	if err := tracker.CorrectLifetimeValues(context.Background()); err != nil {
		t.Fatalf("CorrectLifetimeValues() error = %v", err)
	}

	b, _ := st.Breaker("brk-1")
	if b.EnergyConsumption == nil || *b.EnergyConsumption != 3400.25 {
		t.Errorf("EnergyConsumption = %v, want 3400.25", b.EnergyConsumption)
	}
	if repo.lifetime["brk-1"] != 3400.25 {
		t.Errorf("cache = %v, want 3400.25", repo.lifetime["brk-1"])
	}
}

func TestCorrectLifetimeValues_LifetimeAdvancesCache(t *testing.T) {
	repo := newFakeRepo()
	repo.lifetime["brk-1"] = 3400.0
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", EnergyConsumption: fptr(3512.5)}
	})

	if err := tracker.CorrectLifetimeValues(context.Background()); err != nil {
		t.Fatalf("CorrectLifetimeValues() error = %v", err)
	}

	b, _ := st.Breaker("brk-1")
	if *b.EnergyConsumption != 3512.5 {
		t.Errorf("EnergyConsumption = %v, want unchanged 3512.5", *b.EnergyConsumption)
	}
	if repo.lifetime["brk-1"] != 3512.5 {
		t.Errorf("cache = %v, want 3512.5", repo.lifetime["brk-1"])
	}
}

func TestCorrectLifetimeValues_ValueAtExactlyHalfIsLifetime(t *testing.T) {
	repo := newFakeRepo()
	repo.lifetime["brk-1"] = 1000.0
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", EnergyConsumption: fptr(500.0)}
	})

	if err := tracker.CorrectLifetimeValues(context.Background()); err != nil {
		t.Fatalf("CorrectLifetimeValues() error = %v", err)
	}

	b, _ := st.Breaker("brk-1")
	if *b.EnergyConsumption != 500.0 {
		t.Errorf("EnergyConsumption = %v, want 500.0 (not treated as delta)", *b.EnergyConsumption)
	}
}

func TestCorrectLifetimeValues_NoCacheSeedsCache(t *testing.T) {
	repo := newFakeRepo()
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", Poles: 2,
			EnergyConsumption:  fptr(100.0),
			EnergyConsumption2: fptr(90.0),
		}
		d.Cts["7"] = &store.Ct{ID: 7, EnergyImport2: fptr(12.3)}
	})

	if err := tracker.CorrectLifetimeValues(context.Background()); err != nil {
		t.Fatalf("CorrectLifetimeValues() error = %v", err)
	}

	want := map[string]float64{"brk-1": 100.0, "brk-1_2": 90.0, "ct_7_import_2": 12.3}
	for k, v := range want {
		if repo.lifetime[k] != v {
			t.Errorf("cache[%s] = %v, want %v", k, repo.lifetime[k], v)
		}
	}
}

func TestCorrectLifetimeValues_CtDelta(t *testing.T) {
	repo := newFakeRepo()
	repo.lifetime["ct_3_import"] = 800.0
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Cts["3"] = &store.Ct{ID: 3, EnergyImport: fptr(1.5)}
	})

	if err := tracker.CorrectLifetimeValues(context.Background()); err != nil {
		t.Fatalf("CorrectLifetimeValues() error = %v", err)
	}

	ct, _ := st.Ct("3")
	if ct.EnergyImport == nil || *ct.EnergyImport != 801.5 {
		t.Errorf("EnergyImport = %v, want 801.5", ct.EnergyImport)
	}
}

func TestSnapshotDailyBaselines(t *testing.T) {
	tracker, st := newTestTracker(newFakeRepo())

	st.Update(func(d *store.Data) {
		d.Breakers["single"] = &store.Breaker{ID: "single", Poles: 1, EnergyConsumption: fptr(40.0)}
		d.Breakers["double"] = &store.Breaker{ID: "double", Poles: 2,
			EnergyConsumption: fptr(100.0), EnergyConsumption2: fptr(95.5)}
		d.Breakers["novalue"] = &store.Breaker{ID: "novalue"}
		d.Cts["9"] = &store.Ct{ID: 9, EnergyConsumption: fptr(10.0), EnergyConsumption2: fptr(5.25)}
	})

	tracker.SnapshotDailyBaselines()

	st.View(func(d *store.Data) {
		if d.DailyBaselines["single"] != 40.0 {
			t.Errorf("single baseline = %v, want 40.0", d.DailyBaselines["single"])
		}
		if d.DailyBaselines["double"] != 195.5 {
			t.Errorf("double baseline = %v, want 195.5 (poles summed)", d.DailyBaselines["double"])
		}
		if _, ok := d.DailyBaselines["novalue"]; ok {
			t.Error("baseline recorded for breaker with no energy value")
		}
		if d.DailyBaselines["ct_9"] != 15.25 {
			t.Errorf("ct_9 baseline = %v, want 15.25 (legs summed)", d.DailyBaselines["ct_9"])
		}
		if d.BaselineDate != time.Now().UTC().Format("2006-01-02") {
			t.Errorf("BaselineDate = %q, want today", d.BaselineDate)
		}
	})
}

func TestLoadDailyBaselines_RestoresSameDay(t *testing.T) {
	repo := newFakeRepo()
	repo.baselines["brk-1"] = 123.0
	repo.baselineDate = time.Now().UTC().Format("2006-01-02")
	tracker, st := newTestTracker(repo)

	if err := tracker.LoadDailyBaselines(context.Background()); err != nil {
		t.Fatalf("LoadDailyBaselines() error = %v", err)
	}

	st.View(func(d *store.Data) {
		if d.DailyBaselines["brk-1"] != 123.0 {
			t.Errorf("baseline = %v, want restored 123.0", d.DailyBaselines["brk-1"])
		}
	})
	if repo.baselineSaves != 0 {
		t.Errorf("baselineSaves = %d, want 0 (no re-snapshot)", repo.baselineSaves)
	}
}

func TestLoadDailyBaselines_StaleDateResnapshots(t *testing.T) {
	repo := newFakeRepo()
	repo.baselines["brk-1"] = 123.0
	repo.baselineDate = "2020-01-01"
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", EnergyConsumption: fptr(400.0)}
	})

	if err := tracker.LoadDailyBaselines(context.Background()); err != nil {
		t.Fatalf("LoadDailyBaselines() error = %v", err)
	}

	st.View(func(d *store.Data) {
		if d.DailyBaselines["brk-1"] != 400.0 {
			t.Errorf("baseline = %v, want fresh 400.0 (stored snapshot was stale)", d.DailyBaselines["brk-1"])
		}
	})
	if repo.baselineSaves != 1 {
		t.Errorf("baselineSaves = %d, want 1", repo.baselineSaves)
	}
}

func TestLoadDailyBaselines_EmptyStoreSnapshots(t *testing.T) {
	repo := newFakeRepo()
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", EnergyConsumption: fptr(50.0)}
	})

	if err := tracker.LoadDailyBaselines(context.Background()); err != nil {
		t.Fatalf("LoadDailyBaselines() error = %v", err)
	}
	if repo.baselines["brk-1"] != 50.0 {
		t.Errorf("persisted baseline = %v, want 50.0", repo.baselines["brk-1"])
	}
}

func TestHandleMidnight(t *testing.T) {
	repo := newFakeRepo()
	tracker, st := newTestTracker(repo)

	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", EnergyConsumption: fptr(777.0)}
	})

	if err := tracker.HandleMidnight(context.Background()); err != nil {
		t.Fatalf("HandleMidnight() error = %v", err)
	}

	if repo.baselines["brk-1"] != 777.0 {
		t.Errorf("persisted baseline = %v, want 777.0", repo.baselines["brk-1"])
	}
	if repo.lifetime["brk-1"] != 777.0 {
		t.Errorf("persisted lifetime = %v, want 777.0", repo.lifetime["brk-1"])
	}
}

func TestDailyEnergy(t *testing.T) {
	tracker, st := newTestTracker(newFakeRepo())
	st.Update(func(d *store.Data) {
		d.DailyBaselines["brk-1"] = 100.0
		d.DailyBaselines["brk-2"] = 100.0
	})

	tests := []struct {
		name     string
		key      string
		lifetime *float64
		want     *float64
	}{
		{"normal", "brk-1", fptr(112.345), fptr(12.35)},
		{"decrease held at high water", "brk-1", fptr(112.0), fptr(12.35)},
		{"negative floored", "brk-2", fptr(99.0), fptr(0.0)},
		{"nil lifetime", "brk-1", nil, nil},
		{"no baseline", "unknown", fptr(50.0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tracker.DailyEnergy(tt.key, tt.lifetime)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("DailyEnergy() = %v, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("DailyEnergy() = nil, want %v", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("DailyEnergy() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func TestClampIncreasing(t *testing.T) {
	tracker, _ := newTestTracker(newFakeRepo())

	if got := tracker.ClampIncreasing("k", 10.0); got != 10.0 {
		t.Errorf("first value = %v, want 10.0", got)
	}
	if got := tracker.ClampIncreasing("k", 9.999); got != 10.0 {
		t.Errorf("decreasing value = %v, want held at 10.0", got)
	}
	if got := tracker.ClampIncreasing("k", 10.001); got != 10.001 {
		t.Errorf("increasing value = %v, want 10.001", got)
	}
	// Independent keys do not interact.
	if got := tracker.ClampIncreasing("other", 1.0); got != 1.0 {
		t.Errorf("other key = %v, want 1.0", got)
	}
}

func TestSnapshotResetsHighWater(t *testing.T) {
	tracker, _ := newTestTracker(newFakeRepo())

	tracker.ClampIncreasing("brk-1", 42.0)
	tracker.SnapshotDailyBaselines()
	if got := tracker.ClampIncreasing("brk-1", 0.5); got != 0.5 {
		t.Errorf("post-snapshot value = %v, want 0.5", got)
	}
}

func TestBreakerDailyEnergy_SumsTwoPoleLegs(t *testing.T) {
	tracker, st := newTestTracker(newFakeRepo())
	st.Update(func(d *store.Data) {
		d.DailyBaselines["brk-1"] = 1000.0
	})

	b := &store.Breaker{Poles: 2, EnergyConsumption: fptr(600.0), EnergyConsumption2: fptr(410.5)}
	got := tracker.BreakerDailyEnergy("brk-1", b)
	if got == nil || *got != 10.5 {
		t.Fatalf("BreakerDailyEnergy() = %v, want 10.5", got)
	}

	if tracker.BreakerDailyEnergy("brk-1", &store.Breaker{Poles: 2}) != nil {
		t.Error("expected nil for breaker without lifetime energy")
	}
}

func TestCtDailyEnergy_SumsLegs(t *testing.T) {
	tracker, st := newTestTracker(newFakeRepo())
	st.Update(func(d *store.Data) {
		d.DailyBaselines["ct_3"] = 500.0
	})

	c := &store.Ct{ID: 3, EnergyConsumption: fptr(300.0), EnergyConsumption2: fptr(225.25)}
	got := tracker.CtDailyEnergy("3", c)
	if got == nil || *got != 25.25 {
		t.Fatalf("CtDailyEnergy() = %v, want 25.25", got)
	}

	if tracker.CtDailyEnergy("3", &store.Ct{ID: 3}) != nil {
		t.Error("expected nil for ct without lifetime energy")
	}
}
