package store

import "sync"

// Data is the canonical in-memory snapshot of one account's device graph:
// five id-keyed mappings plus the daily-baseline bookkeeping.
//
// Data itself is not synchronized; all access goes through a Store, which
// serializes every mutation behind a single mutex. Components receive the
// *Data inside Update/View closures and must not retain it.
type Data struct {
	Whems      map[string]*Whem
	Panels     map[string]*Panel
	Breakers   map[string]*Breaker
	Cts        map[string]*Ct
	Residences map[int]*Residence

	// DailyBaselines maps a device-scoped energy key to the lifetime value
	// recorded at the most recent local-midnight rollover. BaselineDate is
	// the YYYY-MM-DD date the snapshot is valid for.
	DailyBaselines map[string]float64
	BaselineDate   string
}

// NewData creates an empty snapshot with all mappings allocated.
func NewData() *Data {
	return &Data{
		Whems:          make(map[string]*Whem),
		Panels:         make(map[string]*Panel),
		Breakers:       make(map[string]*Breaker),
		Cts:            make(map[string]*Ct),
		Residences:     make(map[int]*Residence),
		DailyBaselines: make(map[string]float64),
	}
}

// Store wraps Data with the single-mutex concurrency model: discovery swaps,
// live-notification merges, polling refreshes, and midnight rollovers are all
// serialized with respect to each other.
//
// It also carries the "data changed" fanout consumed by downstream sinks
// (MQTT republisher, metrics writer, status API views).
type Store struct {
	mu   sync.RWMutex
	data *Data

	changeMu  sync.Mutex
	listeners map[int]func()
	nextID    int
}

// New creates a Store with an empty snapshot.
func New() *Store {
	return &Store{
		data:      NewData(),
		listeners: make(map[int]func()),
	}
}

// Update runs fn with exclusive access to the snapshot.
// fn must not block on I/O and must not retain the *Data.
func (s *Store) Update(fn func(*Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// View runs fn with shared read access to the snapshot.
// fn must not mutate the snapshot and must not retain the *Data.
func (s *Store) View(fn func(*Data)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// Replace swaps in a freshly discovered snapshot, wholesale.
// The previous snapshot is discarded, never merged.
func (s *Store) Replace(data *Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == nil {
		data = NewData()
	}
	s.data = data
}

// Breaker returns an independent copy of the breaker with the given id.
func (s *Store) Breaker(id string) (*Breaker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data.Breakers[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Ct returns an independent copy of the CT channel with the given id.
func (s *Store) Ct(id string) (*Ct, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.Cts[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Whem returns an independent copy of the hub with the given id.
func (s *Store) Whem(id string) (*Whem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.data.Whems[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// Panel returns an independent copy of the panel with the given id.
func (s *Store) Panel(id string) (*Panel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.Panels[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Counts reports how many devices of each kind are in the snapshot.
func (s *Store) Counts() (whems, panels, breakers, cts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Whems), len(s.data.Panels), len(s.data.Breakers), len(s.data.Cts)
}

// OnChange registers a callback invoked after any successful live or polling
// merge. The returned function removes the registration.
func (s *Store) OnChange(fn func()) func() {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.changeMu.Lock()
		defer s.changeMu.Unlock()
		delete(s.listeners, id)
	}
}

// NotifyChange invokes every registered change callback synchronously.
// Callers must not hold the snapshot lock.
func (s *Store) NotifyChange() {
	s.changeMu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.changeMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
