package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/leviton-sync/internal/store"
)

// breakerView is a breaker with derived daily energy attached. The daily
// figure covers both legs of a two-pole breaker.
type breakerView struct {
	*store.Breaker
	DailyEnergy *float64 `json:"dailyEnergy,omitempty"`
}

// ctView is a CT with derived daily energy attached.
type ctView struct {
	*store.Ct
	DailyEnergy *float64 `json:"dailyEnergy,omitempty"`
}

// snapshot clones every device out of the store. Daily energy derivation
// takes the store lock again, so it must happen on the clones, outside View.
func (s *Server) snapshot() (map[string]*store.Whem, map[string]*store.Panel, map[string]*store.Breaker, map[string]*store.Ct) {
	whems := make(map[string]*store.Whem)
	panels := make(map[string]*store.Panel)
	breakers := make(map[string]*store.Breaker)
	cts := make(map[string]*store.Ct)
	s.store.View(func(d *store.Data) {
		for id, w := range d.Whems {
			whems[id] = w.Clone()
		}
		for id, p := range d.Panels {
			panels[id] = p.Clone()
		}
		for id, b := range d.Breakers {
			breakers[id] = b.Clone()
		}
		for id, c := range d.Cts {
			cts[id] = c.Clone()
		}
	})
	return whems, panels, breakers, cts
}

func (s *Server) breakerView(id string, b *store.Breaker) breakerView {
	return breakerView{
		Breaker:     b,
		DailyEnergy: s.tracker.BreakerDailyEnergy(id, b),
	}
}

func (s *Server) ctView(id string, c *store.Ct) ctView {
	return ctView{
		Ct:          c,
		DailyEnergy: s.tracker.CtDailyEnergy(id, c),
	}
}

// handleListDevices returns the full device snapshot grouped by kind.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	whems, panels, breakers, cts := s.snapshot()

	breakerViews := make(map[string]breakerView, len(breakers))
	for id, b := range breakers {
		breakerViews[id] = s.breakerView(id, b)
	}
	ctViews := make(map[string]ctView, len(cts))
	for id, c := range cts {
		ctViews[id] = s.ctView(id, c)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"whems":    whems,
		"panels":   panels,
		"breakers": breakerViews,
		"cts":      ctViews,
	})
}

// handleGetDevice returns a single device by id, searching every kind.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if b, ok := s.store.Breaker(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"kind": "breaker", "device": s.breakerView(id, b)})
		return
	}
	if c, ok := s.store.Ct(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"kind": "ct", "device": s.ctView(id, c)})
		return
	}
	if h, ok := s.store.Whem(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"kind": "whem", "device": h})
		return
	}
	if p, ok := s.store.Panel(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"kind": "panel", "device": p})
		return
	}

	writeNotFound(w, "device not found: "+id)
}
