package api

import (
	"net/http"

	"github.com/nerrad567/leviton-sync/internal/store"
)

// dailyEntry is one device's derived daily energy.
type dailyEntry struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	DailyEnergy *float64 `json:"dailyEnergy,omitempty"`
}

// handleDailyEnergy returns today's derived energy for every breaker and CT.
func (s *Server) handleDailyEnergy(w http.ResponseWriter, _ *http.Request) {
	_, _, breakers, cts := s.snapshot()

	var date string
	s.store.View(func(d *store.Data) {
		date = d.BaselineDate
	})

	entries := make([]dailyEntry, 0, len(breakers)+len(cts))
	for id, b := range breakers {
		entries = append(entries, dailyEntry{
			ID:          id,
			Kind:        "breaker",
			Name:        b.Name,
			DailyEnergy: s.tracker.BreakerDailyEnergy(id, b),
		})
	}
	for id, c := range cts {
		entries = append(entries, dailyEntry{
			ID:          id,
			Kind:        "ct",
			Name:        c.Name,
			DailyEnergy: s.tracker.CtDailyEnergy(id, c),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"devices": entries,
	})
}

// handleSystem returns sync-channel health, device counts, and pending
// firmware updates.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	mode := "polling"
	if s.sync.LiveConnected() {
		mode = "live"
	}

	whems, panels, breakers, cts := s.store.Counts()

	updates := s.sync.FirmwareUpdates()
	firmware := make([]map[string]string, 0, len(updates))
	for _, u := range updates {
		firmware = append(firmware, map[string]string{
			"deviceId":       u.DeviceID,
			"deviceName":     u.DeviceName,
			"currentVersion": u.CurrentVersion,
			"newVersion":     u.NewVersion,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sync": mode,
		"counts": map[string]int{
			"whems":    whems,
			"panels":   panels,
			"breakers": breakers,
			"cts":      cts,
		},
		"firmwareUpdates": firmware,
	})
}
