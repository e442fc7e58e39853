package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/leviton-sync/internal/energy"
	"github.com/nerrad567/leviton-sync/internal/leviton"
	"github.com/nerrad567/leviton-sync/internal/store"
)

// Client is the transport surface the engine needs for polling and
// breaker control.
type Client interface {
	GetWhem(ctx context.Context, whemID string) (*store.Whem, error)
	GetWhemBreakers(ctx context.Context, whemID string) ([]store.Breaker, error)
	GetCts(ctx context.Context, whemID string) ([]store.Ct, error)
	GetPanel(ctx context.Context, panelID string) (*store.Panel, error)
	GetPanelBreakers(ctx context.Context, panelID string) ([]store.Breaker, error)
	SetWhemBandwidth(ctx context.Context, whemID string, mode int) error
	SetBreakerRemote(ctx context.Context, breakerID string, on bool) error
	TripBreaker(ctx context.Context, breakerID string) error
	IdentifyBreaker(ctx context.Context, breakerID string) error
}

// Discoverer produces a fresh topology snapshot.
type Discoverer interface {
	Discover(ctx context.Context) (*store.Data, error)
}

// LiveSync is the live-channel manager surface the engine drives.
type LiveSync interface {
	Connect(ctx context.Context) error
	Shutdown(ctx context.Context)
	Connected() bool
}

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config carries the engine's timing policy.
type Config struct {
	// PollInterval is the fallback polling cadence.
	PollInterval time.Duration
	// BandwidthSettleDelay is how long to wait after resetting a hub's
	// bandwidth mode before reading energy from it.
	BandwidthSettleDelay time.Duration
	// Location is the local timezone driving midnight rollovers.
	Location *time.Location
}

// FirmwareUpdate describes a device with staged or available firmware.
type FirmwareUpdate struct {
	DeviceID       string
	DeviceName     string
	CurrentVersion string
	NewVersion     string
}

// Engine orchestrates the sync lifecycle: first refresh (discovery, energy
// correction, live connect, baseline restore), the fallback polling loop,
// the midnight rollover, and breaker control commands.
type Engine struct {
	client     Client
	discoverer Discoverer
	live       LiveSync
	tracker    *energy.Tracker
	store      *store.Store
	cfg        Config
	logger     Logger
}

// ErrNotRemoteCapable is returned for a control command aimed at a breaker
// that cannot execute it.
var ErrNotRemoteCapable = errors.New("engine: breaker is not remote capable")

// ErrUnknownDevice is returned for a command aimed at a device the store
// does not hold.
var ErrUnknownDevice = errors.New("engine: unknown device")

// New creates an engine over the given collaborators.
func New(client Client, discoverer Discoverer, live LiveSync, tracker *energy.Tracker, st *store.Store, cfg Config, logger Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		client:     client,
		discoverer: discoverer,
		live:       live,
		tracker:    tracker,
		store:      st,
		cfg:        cfg,
		logger:     logger,
	}
}

// Store exposes the engine's device store for read-side consumers.
func (e *Engine) Store() *store.Store { return e.store }

// LiveConnected reports whether the live channel currently carries sync.
func (e *Engine) LiveConnected() bool { return e.live.Connected() }

// FirstRefresh performs the startup sequence: full topology discovery,
// energy correction against the persisted cache, live-channel bring-up,
// and baseline restoration. Fails only when discovery itself fails; a
// dead live channel leaves polling in charge.
func (e *Engine) FirstRefresh(ctx context.Context) error {
	data, err := e.discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering topology: %w", err)
	}
	e.store.Replace(data)

	whems, panels, breakers, cts := e.store.Counts()
	e.logger.Info("topology discovered",
		"whems", whems, "panels", panels, "breakers", breakers, "cts", cts)

	if err := e.tracker.CorrectLifetimeValues(ctx); err != nil {
		e.logger.Warn("energy correction failed", "error", err)
	}

	if err := e.live.Connect(ctx); err != nil {
		if errors.Is(err, leviton.ErrAuth) {
			return fmt.Errorf("connecting live channel: %w", err)
		}
		e.logger.Warn("live channel unavailable, polling carries sync", "error", err)
	}

	if err := e.tracker.LoadDailyBaselines(ctx); err != nil {
		e.logger.Warn("baseline restore failed", "error", err)
	}

	for _, update := range e.FirmwareUpdates() {
		e.logger.Warn("firmware update available",
			"device", update.DeviceName, "device_id", update.DeviceID,
			"current", update.CurrentVersion, "new", update.NewVersion)
	}

	e.store.NotifyChange()
	return nil
}

// Refresh is one fallback polling pass.
//
// With the live channel up, hubs are fully pushed and only panels need
// REST (their push carries power and current but never energy). With the
// channel down, everything is refreshed. Refreshed records replace the
// stored ones, after which delta correction and the lifetime cache are
// brought up to date.
func (e *Engine) Refresh(ctx context.Context) error {
	liveUp := e.live.Connected()

	var whemIDs, panelIDs []string
	e.store.View(func(d *store.Data) {
		for id := range d.Whems {
			whemIDs = append(whemIDs, id)
		}
		for id := range d.Panels {
			panelIDs = append(panelIDs, id)
		}
	})

	if liveUp && len(panelIDs) == 0 {
		return nil
	}
	e.logger.Debug("polling refresh",
		"live", liveUp, "whems", len(whemIDs), "panels", len(panelIDs))

	if !liveUp {
		for _, whemID := range whemIDs {
			if err := e.refreshWhem(ctx, whemID); err != nil {
				return err
			}
		}
	}
	for _, panelID := range panelIDs {
		if err := e.refreshPanel(ctx, panelID); err != nil {
			return err
		}
	}

	if err := e.tracker.CorrectLifetimeValues(ctx); err != nil {
		e.logger.Warn("energy correction failed", "error", err)
	}
	if err := e.tracker.SaveLifetimeEnergy(ctx); err != nil {
		e.logger.Warn("lifetime cache save failed", "error", err)
	}

	e.store.NotifyChange()
	return nil
}

func (e *Engine) refreshWhem(ctx context.Context, whemID string) error {
	// Same workaround as discovery: a hub left in streaming mode reports
	// period deltas over REST. Resetting first and letting the mode settle
	// keeps lifetime readings flowing into the correction pass.
	if err := e.client.SetWhemBandwidth(ctx, whemID, store.BandwidthQuiet); err != nil {
		e.logger.Debug("failed to reset bandwidth for hub", "whem_id", whemID, "error", err)
	} else if err := e.settle(ctx); err != nil {
		return err
	}

	whem, err := e.client.GetWhem(ctx, whemID)
	if err != nil {
		return fmt.Errorf("refreshing hub %s: %w", whemID, err)
	}
	breakers, err := e.client.GetWhemBreakers(ctx, whemID)
	if err != nil {
		return fmt.Errorf("refreshing breakers for hub %s: %w", whemID, err)
	}
	cts, err := e.client.GetCts(ctx, whemID)
	if err != nil {
		return fmt.Errorf("refreshing CT channels for hub %s: %w", whemID, err)
	}
	e.store.Update(func(d *store.Data) {
		d.Whems[whemID] = whem
		for i := range breakers {
			b := breakers[i]
			d.Breakers[b.ID] = &b
		}
		for i := range cts {
			ct := cts[i]
			d.Cts[strconv.Itoa(ct.ID)] = &ct
		}
	})
	return nil
}

func (e *Engine) refreshPanel(ctx context.Context, panelID string) error {
	panel, err := e.client.GetPanel(ctx, panelID)
	if err != nil {
		return fmt.Errorf("refreshing panel %s: %w", panelID, err)
	}
	breakers, err := e.client.GetPanelBreakers(ctx, panelID)
	if err != nil {
		return fmt.Errorf("refreshing breakers for panel %s: %w", panelID, err)
	}
	e.store.Update(func(d *store.Data) {
		d.Panels[panelID] = panel
		for i := range breakers {
			b := breakers[i]
			d.Breakers[b.ID] = &b
		}
	})
	return nil
}

// FirmwareUpdates lists devices with newer firmware staged or available.
// Hubs stage firmware into a downloaded slot; panels report a flagged
// availability state.
func (e *Engine) FirmwareUpdates() []FirmwareUpdate {
	var updates []FirmwareUpdate
	e.store.View(func(d *store.Data) {
		for id, whem := range d.Whems {
			if whem.Downloaded != "" && whem.Downloaded != whem.Version {
				updates = append(updates, FirmwareUpdate{
					DeviceID:       id,
					DeviceName:     whem.Name,
					CurrentVersion: whem.Version,
					NewVersion:     whem.Downloaded,
				})
			}
		}
		for id, panel := range d.Panels {
			if panel.UpdateAvailability != "" && panel.UpdateAvailability != store.PanelUpToDate {
				updates = append(updates, FirmwareUpdate{
					DeviceID:       id,
					DeviceName:     panel.Name,
					CurrentVersion: panel.PackageVer,
					NewVersion:     panel.UpdateVersion,
				})
			}
		}
	})
	return updates
}

// SetBreakerRemote switches a remote-capable breaker on or off. The store
// reflects the commanded state immediately, flagged as predicted; the next
// authoritative update (push or poll) confirms or corrects it. A transport
// failure rolls the prediction back.
func (e *Engine) SetBreakerRemote(ctx context.Context, breakerID string, on bool) error {
	var prevState string
	var known, capable bool
	e.store.Update(func(d *store.Data) {
		breaker, ok := d.Breakers[breakerID]
		if !ok {
			return
		}
		known = true
		if on && !breaker.CanRemoteOn {
			return
		}
		capable = true
		prevState = breaker.RemoteState
		breaker.RemoteState = store.RemoteStateOff
		if on {
			breaker.RemoteState = store.RemoteStateOn
		}
		breaker.RemoteStatePredicted = true
	})
	if !known {
		return fmt.Errorf("%w: breaker %s", ErrUnknownDevice, breakerID)
	}
	if !capable {
		return fmt.Errorf("%w: breaker %s cannot be remotely energized", ErrNotRemoteCapable, breakerID)
	}
	e.store.NotifyChange()

	if err := e.client.SetBreakerRemote(ctx, breakerID, on); err != nil {
		e.store.Update(func(d *store.Data) {
			if breaker, ok := d.Breakers[breakerID]; ok && breaker.RemoteStatePredicted {
				breaker.RemoteState = prevState
				breaker.RemoteStatePredicted = false
			}
		})
		e.store.NotifyChange()
		return fmt.Errorf("commanding breaker %s: %w", breakerID, err)
	}
	return nil
}

// TripBreaker remotely trips a breaker.
func (e *Engine) TripBreaker(ctx context.Context, breakerID string) error {
	if _, ok := e.store.Breaker(breakerID); !ok {
		return fmt.Errorf("%w: breaker %s", ErrUnknownDevice, breakerID)
	}
	if err := e.client.TripBreaker(ctx, breakerID); err != nil {
		return fmt.Errorf("tripping breaker %s: %w", breakerID, err)
	}
	return nil
}

// IdentifyBreaker blinks a breaker's locator LED.
func (e *Engine) IdentifyBreaker(ctx context.Context, breakerID string) error {
	if _, ok := e.store.Breaker(breakerID); !ok {
		return fmt.Errorf("%w: breaker %s", ErrUnknownDevice, breakerID)
	}
	if err := e.client.IdentifyBreaker(ctx, breakerID); err != nil {
		return fmt.Errorf("identifying breaker %s: %w", breakerID, err)
	}
	return nil
}

// Run drives the engine until ctx is cancelled: first refresh, then the
// polling loop and midnight rollovers.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.FirstRefresh(ctx); err != nil {
		return err
	}

	pollTicker := time.NewTicker(e.cfg.PollInterval)
	defer pollTicker.Stop()
	midnight := time.NewTimer(e.untilNextMidnight())
	defer midnight.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-pollTicker.C:
			if err := e.Refresh(ctx); err != nil {
				if errors.Is(err, leviton.ErrAuth) {
					e.shutdown()
					return fmt.Errorf("polling refresh: %w", err)
				}
				e.logger.Warn("polling refresh failed", "error", err)
			}
		case <-midnight.C:
			if err := e.tracker.HandleMidnight(ctx); err != nil {
				e.logger.Warn("midnight rollover failed", "error", err)
			}
			e.store.NotifyChange()
			midnight.Reset(e.untilNextMidnight())
		}
	}
}

func (e *Engine) settle(ctx context.Context) error {
	if e.cfg.BandwidthSettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.cfg.BandwidthSettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) untilNextMidnight() time.Duration {
	now := time.Now().In(e.cfg.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.cfg.Location).AddDate(0, 0, 1)
	return time.Until(next)
}

// shutdown tears down the live channel and persists the lifetime cache.
// Runs under its own timeout; the run context is already cancelled.
func (e *Engine) shutdown() {
	e.logger.Info("engine shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	e.live.Shutdown(ctx)
	if err := e.tracker.SaveLifetimeEnergy(ctx); err != nil {
		e.logger.Warn("lifetime cache save on shutdown failed", "error", err)
	}
}
