package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/leviton-sync/internal/energy"
	"github.com/nerrad567/leviton-sync/internal/engine"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/config"
	"github.com/nerrad567/leviton-sync/internal/infrastructure/logging"
	"github.com/nerrad567/leviton-sync/internal/store"
)

type fakeSync struct {
	live    bool
	updates []engine.FirmwareUpdate
}

func (f *fakeSync) LiveConnected() bool { return f.live }

func (f *fakeSync) FirmwareUpdates() []engine.FirmwareUpdate { return f.updates }

type memRepo struct{}

func (memRepo) LoadLifetime(context.Context) (map[string]float64, error) { return nil, nil }
func (memRepo) SaveLifetime(context.Context, map[string]float64) error   { return nil }
func (memRepo) LoadBaselines(context.Context) (map[string]float64, string, error) {
	return nil, "", nil
}
func (memRepo) SaveBaselines(context.Context, map[string]float64, string) error { return nil }

func floatPtr(v float64) *float64 { return &v }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func newTestServer(t *testing.T, sync *fakeSync) (*Server, *store.Store) {
	t.Helper()
	st := store.New()
	tracker := energy.NewTracker(memRepo{}, st, time.UTC, nil)
	s, err := New(Deps{
		Config:  config.Default().API,
		Logger:  testLogger(),
		Store:   st,
		Tracker: tracker,
		Sync:    sync,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, st
}

func get(t *testing.T, ts *httptest.Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestNew_RequiresDependencies(t *testing.T) {
	st := store.New()
	tracker := energy.NewTracker(memRepo{}, st, time.UTC, nil)
	deps := Deps{
		Config:  config.Default().API,
		Logger:  testLogger(),
		Store:   st,
		Tracker: tracker,
		Sync:    &fakeSync{},
	}

	if _, err := New(deps); err != nil {
		t.Errorf("New() with full deps error = %v", err)
	}

	missing := deps
	missing.Store = nil
	if _, err := New(missing); err == nil {
		t.Error("New() should fail without a store")
	}

	missing = deps
	missing.Sync = nil
	if _, err := New(missing); err == nil {
		t.Error("New() should fail without a sync status source")
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeSync{live: true})
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	status, body := get(t, ts, "/api/v1/health")
	if status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	if body["status"] != "ok" || body["sync"] != "live" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestListDevices(t *testing.T) {
	s, st := newTestServer(t, &fakeSync{})
	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{
			ID:                "brk-1",
			Name:              "Dryer",
			EnergyConsumption: floatPtr(1100),
		}
		d.Whems["whem-1"] = &store.Whem{ID: "whem-1", Name: "Main"}
		d.DailyBaselines["brk-1"] = 1000
	})

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	status, body := get(t, ts, "/api/v1/devices/")
	if status != http.StatusOK {
		t.Fatalf("devices status = %d, want 200", status)
	}

	breakers, ok := body["breakers"].(map[string]any)
	if !ok {
		t.Fatalf("breakers missing from %v", body)
	}
	brk, ok := breakers["brk-1"].(map[string]any)
	if !ok {
		t.Fatalf("brk-1 missing from %v", breakers)
	}
	if brk["name"] != "Dryer" {
		t.Errorf("name = %v, want Dryer", brk["name"])
	}
	if brk["dailyEnergy"] != 100.0 {
		t.Errorf("dailyEnergy = %v, want 100", brk["dailyEnergy"])
	}
	if _, ok := body["whems"].(map[string]any)["whem-1"]; !ok {
		t.Error("whem-1 missing from whems")
	}
}

func TestGetDevice(t *testing.T) {
	s, st := newTestServer(t, &fakeSync{})
	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", Name: "Oven"}
		d.Cts["7"] = &store.Ct{ID: 7, Name: "Solar"}
	})

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	status, body := get(t, ts, "/api/v1/devices/brk-1")
	if status != http.StatusOK {
		t.Fatalf("device status = %d, want 200", status)
	}
	if body["kind"] != "breaker" {
		t.Errorf("kind = %v, want breaker", body["kind"])
	}

	status, body = get(t, ts, "/api/v1/devices/7")
	if status != http.StatusOK || body["kind"] != "ct" {
		t.Errorf("ct lookup = %d %v", status, body)
	}

	status, body = get(t, ts, "/api/v1/devices/nope")
	if status != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", status)
	}
	if body["code"] != ErrCodeNotFound {
		t.Errorf("missing device code = %v", body["code"])
	}
}

func TestDailyEnergy(t *testing.T) {
	s, st := newTestServer(t, &fakeSync{})
	st.Update(func(d *store.Data) {
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1", Name: "HVAC", EnergyConsumption: floatPtr(5025.5)}
		d.Cts["3"] = &store.Ct{ID: 3, Name: "Feed", EnergyConsumption: floatPtr(910)}
		d.DailyBaselines["brk-1"] = 5000
		d.DailyBaselines["ct_3"] = 900
		d.BaselineDate = "2026-08-29"
	})

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	status, body := get(t, ts, "/api/v1/energy/daily")
	if status != http.StatusOK {
		t.Fatalf("energy status = %d, want 200", status)
	}
	if body["date"] != "2026-08-29" {
		t.Errorf("date = %v", body["date"])
	}

	devices, ok := body["devices"].([]any)
	if !ok || len(devices) != 2 {
		t.Fatalf("devices = %v, want 2 entries", body["devices"])
	}
	byID := make(map[string]map[string]any)
	for _, e := range devices {
		entry := e.(map[string]any)
		byID[entry["id"].(string)] = entry
	}
	if byID["brk-1"]["dailyEnergy"] != 25.5 {
		t.Errorf("brk-1 daily = %v, want 25.5", byID["brk-1"]["dailyEnergy"])
	}
	if byID["3"]["kind"] != "ct" || byID["3"]["dailyEnergy"] != 10.0 {
		t.Errorf("ct entry = %v", byID["3"])
	}
}

func TestSystem(t *testing.T) {
	s, st := newTestServer(t, &fakeSync{
		live: false,
		updates: []engine.FirmwareUpdate{
			{DeviceID: "whem-1", DeviceName: "Main", CurrentVersion: "1.9.2", NewVersion: "2.0.0"},
		},
	})
	st.Update(func(d *store.Data) {
		d.Whems["whem-1"] = &store.Whem{ID: "whem-1"}
		d.Breakers["brk-1"] = &store.Breaker{ID: "brk-1"}
	})

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	status, body := get(t, ts, "/api/v1/system")
	if status != http.StatusOK {
		t.Fatalf("system status = %d, want 200", status)
	}
	if body["sync"] != "polling" {
		t.Errorf("sync = %v, want polling", body["sync"])
	}

	counts := body["counts"].(map[string]any)
	if counts["whems"] != 1.0 || counts["breakers"] != 1.0 {
		t.Errorf("counts = %v", counts)
	}

	firmware := body["firmwareUpdates"].([]any)
	if len(firmware) != 1 {
		t.Fatalf("firmwareUpdates = %v, want 1 entry", firmware)
	}
	update := firmware[0].(map[string]any)
	if update["newVersion"] != "2.0.0" {
		t.Errorf("newVersion = %v, want 2.0.0", update["newVersion"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t, &fakeSync{})
	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "caller-chosen")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET health with id: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "caller-chosen" {
		t.Errorf("X-Request-ID = %q, want caller-chosen", got)
	}
}

func TestStartAndClose(t *testing.T) {
	sync := &fakeSync{}
	s, _ := newTestServer(t, sync)
	s.cfg.Host = "127.0.0.1"
	s.cfg.Port = 0 // not used for listen assertions; Close before traffic

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail before Start")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}
